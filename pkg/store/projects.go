package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// CreateProject creates a named workspace. Returns ErrNameConflict if the
// name is already in use.
func (c *Client) CreateProject(ctx context.Context, name, localPath string) (*models.Project, error) {
	id := uuid.NewString()
	row := c.db.QueryRowContext(ctx, `
		INSERT INTO projects (id, name, local_path)
		VALUES ($1, $2, $3)
		RETURNING id, name, local_path, created_at
	`, id, name, localPath)

	p, err := scanProject(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrNameConflict
		}
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// GetProject fetches a Project by id.
func (c *Client) GetProject(ctx context.Context, id string) (*models.Project, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, local_path, created_at FROM projects WHERE id = $1
	`, id)

	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all Projects, newest first.
func (c *Client) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, local_path, created_at FROM projects ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	if err := row.Scan(&p.ID, &p.Name, &p.LocalPath, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
