package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

// notifyByteLimit keeps NOTIFY payloads under PostgreSQL's 8000-byte limit
// with headroom for the envelope itself.
const notifyByteLimit = 7900

// execQueryRower is satisfied by both *sql.DB and *sql.Tx, letting
// insertEvent be shared between standalone appends and the co-commit paths
// in runs.go, and letting it issue pg_notify alongside the INSERT.
type execQueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// RunChannel derives the NOTIFY channel name for a Run. Must match the
// naming used by eventstream's broker, which subscribes to it.
func RunChannel(runID string) string {
	return "run_" + strings.ReplaceAll(runID, "-", "_")
}

// AppendEvent inserts a standalone Event row and publishes it via NOTIFY.
// Used for the high-volume, non-status-changing events (AGENT_THINKING,
// STEP_STARTED, LLM_HEARTBEAT, and similar) that don't need to be
// co-committed with a Run transition.
func (c *Client) AppendEvent(ctx context.Context, runID string, eventType models.EventType, payload map[string]any) (*models.Event, error) {
	return insertEvent(ctx, c.db, runID, eventType, payload)
}

func insertEvent(ctx context.Context, q execQueryRower, runID string, eventType models.EventType, payload map[string]any) (*models.Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	row := q.QueryRowContext(ctx, `
		INSERT INTO events (run_id, type, payload)
		VALUES ($1, $2, $3)
		RETURNING id, run_id, type, payload, created_at
	`, runID, eventType, payloadJSON)
	evt, err := scanEvent(row)
	if err != nil {
		return nil, err
	}

	notifyPayload, err := buildNotifyPayload(evt)
	if err != nil {
		return nil, fmt.Errorf("build notify payload: %w", err)
	}
	if _, err := q.ExecContext(ctx, "SELECT pg_notify($1, $2)", RunChannel(runID), notifyPayload); err != nil {
		return nil, fmt.Errorf("pg_notify: %w", err)
	}
	return evt, nil
}

// buildNotifyPayload marshals an Event for NOTIFY delivery, falling back to
// a minimal routing-only envelope if the full payload would exceed
// PostgreSQL's NOTIFY size limit. Oversized events are always retrievable
// in full via ListEvents; the truncation only affects the live push.
func buildNotifyPayload(evt *models.Event) (string, error) {
	full, err := json.Marshal(evt)
	if err != nil {
		return "", err
	}
	if len(full) <= notifyByteLimit {
		return string(full), nil
	}

	truncated := struct {
		ID        int64           `json:"id"`
		RunID     string          `json:"run_id"`
		Type      models.EventType `json:"type"`
		Truncated bool            `json:"truncated"`
	}{ID: evt.ID, RunID: evt.RunID, Type: evt.Type, Truncated: true}
	small, err := json.Marshal(truncated)
	if err != nil {
		return "", err
	}
	return string(small), nil
}

// ListEvents returns a Run's timeline, ordered oldest-first. When afterID is
// non-zero only events with id > afterID are returned, matching the SSE
// replay cursor contract. limit <= 0 means no limit.
func (c *Client) ListEvents(ctx context.Context, runID string, afterID int64, limit int) ([]*models.Event, error) {
	query := `
		SELECT id, run_id, type, payload, created_at
		FROM events
		WHERE run_id = $1 AND id > $2
		ORDER BY created_at ASC, id ASC
	`
	args := []any{runID, afterID}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		e          models.Event
		payloadRaw []byte
	)
	if err := row.Scan(&e.ID, &e.RunID, &e.Type, &payloadRaw, &e.CreatedAt); err != nil {
		return nil, err
	}
	if len(payloadRaw) > 0 {
		_ = json.Unmarshal(payloadRaw, &e.Payload)
	}
	return &e, nil
}
