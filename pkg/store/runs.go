package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
	"github.com/google/uuid"
)

// CreateRun creates a new Run in QUEUED status with iteration 0, and appends
// its RUN_CREATED event, in one transaction: event append and status change
// by a single actor are always co-committed.
func (c *Client) CreateRun(ctx context.Context, req models.CreateRunRequest) (*models.Run, error) {
	if req.RunType == "" {
		req.RunType = models.RunTypeAgent
	}
	optionsJSON, err := marshalMap(req.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	metadataJSON, err := marshalMap(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	row := tx.QueryRowContext(ctx, `
		INSERT INTO runs (id, project_id, name, goal, run_type, status, current_iteration, options, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
		RETURNING id, project_id, name, goal, run_type, status, current_iteration, options, metadata, created_at
	`, id, req.ProjectID, nullIfEmpty(req.Name), req.Goal, req.RunType, models.StatusQueued, optionsJSON, metadataJSON)

	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	if _, err := insertEvent(ctx, tx, run.ID, models.EventRunCreated, nil); err != nil {
		return nil, fmt.Errorf("append RUN_CREATED: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create run: %w", err)
	}
	return run, nil
}

// GetRun fetches a Run by id.
func (c *Client) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, goal, run_type, status, current_iteration, options, metadata, created_at
		FROM runs WHERE id = $1
	`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns all Runs, newest first.
func (c *Client) ListRuns(ctx context.Context) ([]*models.Run, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, project_id, name, goal, run_type, status, current_iteration, options, metadata, created_at
		FROM runs ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ClaimNextQueued atomically claims the oldest QUEUED Run for workerID,
// transitioning it to RUNNING. At most one concurrent caller can win the
// claim for a given Run: the candidate SELECT uses FOR UPDATE SKIP LOCKED
// and the UPDATE re-checks status = QUEUED in the same transaction, so two
// workers racing on the same row never both see it as available. Returns (nil, nil) if no Run is
// available.
func (c *Client) ClaimNextQueued(ctx context.Context, workerID string) (*models.Run, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM runs
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, models.StatusQueued).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select candidate: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE runs
		SET status = $1, claimed_by = $2, last_heartbeat_at = now()
		WHERE id = $3 AND status = $4
		RETURNING id, project_id, name, goal, run_type, status, current_iteration, options, metadata, created_at
	`, models.StatusRunning, workerID, id, models.StatusQueued)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost the race between SELECT and UPDATE (should not happen under
			// SKIP LOCKED, but tolerated as a non-error).
			return nil, nil
		}
		return nil, fmt.Errorf("claim run: %w", err)
	}

	if _, err := insertEvent(ctx, tx, run.ID, models.EventRunStarted, nil); err != nil {
		return nil, fmt.Errorf("append RUN_STARTED: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return run, nil
}

// Transition performs the conditional atomic update from→to. Returns false
// (no error) if the Run was not in the expected "from" state — a lost race
// is a silent no-op for the caller, never an error.
func (c *Client) Transition(ctx context.Context, runID string, from, to models.RunStatus) (bool, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE runs SET status = $1 WHERE id = $2 AND status = $3
	`, to, runID, from)
	if err != nil {
		return false, fmt.Errorf("transition run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// TransitionWithEvent performs Transition and appends an event in the same
// transaction, satisfying the co-commit invariant for transitions that carry
// execution semantics (RUN_PAUSE, RUN_RESUME, RUN_STOP, and the terminal
// RUN_COMPLETED/RUN_FAILED/RUN_STOPPED events). Returns ok=false if the
// expected "from" state did not hold; no event is appended in that case.
func (c *Client) TransitionWithEvent(ctx context.Context, runID string, from, to models.RunStatus, eventType models.EventType, payload map[string]any) (ok bool, event *models.Event, err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET status = $1 WHERE id = $2 AND status = $3
	`, to, runID, from)
	if err != nil {
		return false, nil, fmt.Errorf("transition run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return false, nil, nil
	}

	evt, err := insertEvent(ctx, tx, runID, eventType, payload)
	if err != nil {
		return false, nil, fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("commit transition: %w", err)
	}
	return true, evt, nil
}

// BumpIteration increments current_iteration for a Run. current_iteration
// never decreases; a plain increment on an unsigned-in-practice counter
// maintains that trivially.
func (c *Client) BumpIteration(ctx context.Context, runID string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE runs SET current_iteration = current_iteration + 1 WHERE id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("bump iteration: %w", err)
	}
	return nil
}

// Heartbeat refreshes last_heartbeat_at for a claimed Run, used by the
// Background Worker to prove liveness so orphan recovery can distinguish a
// slow step from an abandoned one.
func (c *Client) Heartbeat(ctx context.Context, runID string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE runs SET last_heartbeat_at = now() WHERE id = $1 AND status = $2
	`, runID, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// RequeueOrphans atomically returns RUNNING Runs whose last heartbeat is
// older than threshold back to QUEUED, so a crashed worker does not strand
// them forever. Returns the ids requeued.
func (c *Client) RequeueOrphans(ctx context.Context, threshold time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-threshold)
	rows, err := c.db.QueryContext(ctx, `
		UPDATE runs
		SET status = $1, claimed_by = NULL, last_heartbeat_at = NULL
		WHERE status = $2 AND (last_heartbeat_at IS NULL OR last_heartbeat_at < $3)
		RETURNING id
	`, models.StatusQueued, models.StatusRunning, cutoff)
	if err != nil {
		return nil, fmt.Errorf("requeue orphans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		r                    models.Run
		name                 sql.NullString
		optionsJSON, metaRaw []byte
	)
	if err := row.Scan(&r.ID, &r.ProjectID, &name, &r.Goal, &r.RunType, &r.Status, &r.CurrentIteration, &optionsJSON, &metaRaw, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Name = name.String
	if len(optionsJSON) > 0 {
		_ = json.Unmarshal(optionsJSON, &r.Options)
	}
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &r.Metadata)
	}
	return &r, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
