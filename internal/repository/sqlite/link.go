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

var _ repository.LinkRepository = (*DB)(nil)

const linkColumns = `id, issue_id, repo_owner, repo_name, remote_number, remote_url,
	remote_state_hash, state, terminal, last_synced_at, created_at`

func scanLink(row interface{ Scan(...any) error }) (*model.ExternalIssueLink, error) {
	var l model.ExternalIssueLink
	err := row.Scan(
		&l.ID,
		&l.IssueID,
		&l.RepoOwner,
		&l.RepoName,
		&l.RemoteNumber,
		&l.RemoteURL,
		&l.RemoteStateHash,
		&l.State,
		&l.Terminal,
		&l.LastSyncedAt,
		&l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLink inserts a link in pending-push state. The UNIQUE constraint on
// issue_id enforces "at most one link per issue" — a second create is a
// conflict, not an upsert.
func (db *DB) CreateLink(ctx context.Context, link *model.ExternalIssueLink) error {
	now := time.Now().UTC()
	link.CreatedAt = now
	link.LastSyncedAt = now
	if link.State == "" {
		link.State = model.LinkPendingPush
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO issue_links (issue_id, repo_owner, repo_name, remote_number, remote_url,
		   remote_state_hash, state, terminal, last_synced_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.IssueID,
		link.RepoOwner,
		link.RepoName,
		link.RemoteNumber,
		link.RemoteURL,
		link.RemoteStateHash,
		link.State,
		link.Terminal,
		link.LastSyncedAt,
		link.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("issue link", link.IssueID)
		}
		return fmt.Errorf("sqlite: inserting link for issue %d: %w", link.IssueID, err)
	}

	link.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading link id: %w", err)
	}
	return nil
}

// GetLinkByIssue retrieves the link for a local issue.
// Returns apperror.ErrNotFound if the issue has no GitHub mirror.
func (db *DB) GetLinkByIssue(ctx context.Context, issueID int64) (*model.ExternalIssueLink, error) {
	link, err := scanLink(db.conn.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM issue_links WHERE issue_id = ?`, issueID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("issue link", issueID)
		}
		return nil, fmt.Errorf("sqlite: getting link for issue %d: %w", issueID, err)
	}
	return link, nil
}

// UpdateLink persists the link's mutable fields. The remote number is
// write-once: an UPDATE never clears an already assigned number.
func (db *DB) UpdateLink(ctx context.Context, link *model.ExternalIssueLink) error {
	link.LastSyncedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE issue_links SET
		   remote_number = CASE WHEN remote_number > 0 THEN remote_number ELSE ? END,
		   remote_url = ?, remote_state_hash = ?, state = ?, terminal = ?, last_synced_at = ?
		 WHERE id = ?`,
		link.RemoteNumber,
		link.RemoteURL,
		link.RemoteStateHash,
		link.State,
		link.Terminal,
		link.LastSyncedAt,
		link.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating link %d: %w", link.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("issue link", link.ID)
	}
	return nil
}

// ListActiveLinks returns links eligible for reconciliation: a remote issue
// exists and the link is not terminal.
func (db *DB) ListActiveLinks(ctx context.Context) ([]model.ExternalIssueLink, error) {
	return db.listLinks(ctx,
		`SELECT `+linkColumns+` FROM issue_links
		 WHERE remote_number > 0 AND terminal = 0 ORDER BY last_synced_at`)
}

// ListPendingLinks returns pending-push links. A pending link found on
// process restart is the crash-recovery marker: the push either never
// happened or its result was never recorded, and re-running it is safe.
func (db *DB) ListPendingLinks(ctx context.Context) ([]model.ExternalIssueLink, error) {
	return db.listLinks(ctx,
		`SELECT `+linkColumns+` FROM issue_links
		 WHERE state = 'pending-push' AND terminal = 0 ORDER BY created_at`)
}

func (db *DB) listLinks(ctx context.Context, query string) ([]model.ExternalIssueLink, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing links: %w", err)
	}
	defer rows.Close()

	var links []model.ExternalIssueLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning link: %w", err)
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

// ResetTerminalLinks revives all of an owner's terminal links. Called when
// the owner re-links GitHub with a fresh token. Links that already have a
// remote issue go back to synced (reconcilable); links whose push never
// landed go back to pending-push.
func (db *DB) ResetTerminalLinks(ctx context.Context, ownerID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE issue_links SET terminal = 0,
		   state = CASE WHEN remote_number > 0 THEN ? ELSE ? END
		 WHERE terminal = 1 AND issue_id IN
		   (SELECT id FROM issues WHERE project_id IN
		     (SELECT id FROM projects WHERE owner_id = ?))`,
		model.LinkSynced, model.LinkPendingPush, ownerID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: resetting terminal links for owner %d: %w", ownerID, err)
	}
	return nil
}
