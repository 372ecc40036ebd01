package store

import "errors"

// Sentinel errors returned by Data Store operations. The API layer maps
// these to HTTP status codes.
var (
	// ErrNotFound is returned when a referenced Project, Run, or Event does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNameConflict is returned by CreateProject when the project name is already in use.
	ErrNameConflict = errors.New("name already in use")

	// ErrIllegalTransition is returned when a status transition's expected
	// "from" state does not match the Run's current state.
	ErrIllegalTransition = errors.New("illegal state transition")
)
