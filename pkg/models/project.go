// Package models contains the wire/storage types for Projects, Runs, and
// Events, plus their request/response shapes for the Control Plane API.
package models

import "time"

// Project is a named workspace on local storage.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LocalPath string    `json:"local_path"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	Name      string `json:"name"`
	LocalPath string `json:"local_path"`
}
