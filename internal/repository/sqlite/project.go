package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
)

var _ repository.ProjectRepository = (*DB)(nil)

// CreateProject inserts a project and fills in its ID and timestamps.
func (db *DB) CreateProject(ctx context.Context, project *model.Project) error {
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO projects (owner_id, name, description, repo_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		project.OwnerID,
		project.Name,
		project.Description,
		project.RepoURL,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting project %q: %w", project.Name, err)
	}

	project.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading project id: %w", err)
	}
	return nil
}

// GetProjectByID retrieves a project. Returns apperror.ErrNotFound if absent.
func (db *DB) GetProjectByID(ctx context.Context, id int64) (*model.Project, error) {
	var p model.Project
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, owner_id, name, description, repo_url, created_at, updated_at
		 FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.RepoURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("project", id)
		}
		return nil, fmt.Errorf("sqlite: getting project %d: %w", id, err)
	}
	return &p, nil
}

// ListProjects returns projects newest-first.
func (db *DB) ListProjects(ctx context.Context, opts repository.ListOptions) ([]model.Project, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, owner_id, name, description, repo_url, created_at, updated_at
		 FROM projects ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.RepoURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project. Its issues survive with project_id NULL
// (foreign key ON DELETE SET NULL).
func (db *DB) DeleteProject(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting project %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("project", id)
	}
	return nil
}
