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

var _ repository.IssueRepository = (*DB)(nil)

const issueColumns = `id, project_id, reporter_id, title, body, issue_type, status, created_at, updated_at`

func scanIssue(row interface{ Scan(...any) error }) (*model.Issue, error) {
	var (
		i          model.Issue
		projectID  sql.NullInt64
		reporterID sql.NullInt64
	)
	err := row.Scan(
		&i.ID,
		&projectID,
		&reporterID,
		&i.Title,
		&i.Body,
		&i.Type,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		i.ProjectID = &projectID.Int64
	}
	if reporterID.Valid {
		i.ReporterID = &reporterID.Int64
	}
	return &i, nil
}

// CreateIssue inserts an issue and fills in its ID and timestamps.
func (db *DB) CreateIssue(ctx context.Context, issue *model.Issue) error {
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	if issue.Status == "" {
		issue.Status = model.StatusOpen
	}
	if issue.Type == "" {
		issue.Type = model.IssueBug
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO issues (project_id, reporter_id, title, body, issue_type, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ProjectID,
		issue.ReporterID,
		issue.Title,
		issue.Body,
		issue.Type,
		issue.Status,
		issue.CreatedAt,
		issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting issue %q: %w", issue.Title, err)
	}

	issue.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading issue id: %w", err)
	}
	return nil
}

// GetIssueByID retrieves an issue. Returns apperror.ErrNotFound if absent.
func (db *DB) GetIssueByID(ctx context.Context, id int64) (*model.Issue, error) {
	issue, err := scanIssue(db.conn.QueryRowContext(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("issue", id)
		}
		return nil, fmt.Errorf("sqlite: getting issue %d: %w", id, err)
	}
	return issue, nil
}

// ListIssuesByProject returns a project's issues newest-first.
func (db *DB) ListIssuesByProject(ctx context.Context, projectID int64, opts repository.ListOptions) ([]model.Issue, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE project_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		projectID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing issues for project %d: %w", projectID, err)
	}
	defer rows.Close()

	var issues []model.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning issue: %w", err)
		}
		issues = append(issues, *issue)
	}
	return issues, rows.Err()
}

// UpdateIssueStatus sets an issue's workflow status.
func (db *DB) UpdateIssueStatus(ctx context.Context, id int64, status model.IssueStatus) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE issues SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating issue %d status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("issue", id)
	}
	return nil
}

// CreateResponse inserts a response on an issue.
func (db *DB) CreateResponse(ctx context.Context, response *model.IssueResponse) error {
	response.CreatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO issue_responses (issue_id, author_id, body, is_solution, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		response.IssueID,
		response.AuthorID,
		response.Body,
		response.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting response on issue %d: %w", response.IssueID, err)
	}

	response.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading response id: %w", err)
	}
	return nil
}

// GetResponseByID retrieves a response. Returns apperror.ErrNotFound if absent.
func (db *DB) GetResponseByID(ctx context.Context, id int64) (*model.IssueResponse, error) {
	var (
		r        model.IssueResponse
		authorID sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, issue_id, author_id, body, is_solution, created_at
		 FROM issue_responses WHERE id = ?`, id,
	).Scan(&r.ID, &r.IssueID, &authorID, &r.Body, &r.IsSolution, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("response", id)
		}
		return nil, fmt.Errorf("sqlite: getting response %d: %w", id, err)
	}
	if authorID.Valid {
		r.AuthorID = &authorID.Int64
	}
	return &r, nil
}

// ListResponses returns an issue's responses oldest-first.
func (db *DB) ListResponses(ctx context.Context, issueID int64) ([]model.IssueResponse, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, issue_id, author_id, body, is_solution, created_at
		 FROM issue_responses WHERE issue_id = ? ORDER BY created_at`,
		issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing responses for issue %d: %w", issueID, err)
	}
	defer rows.Close()

	var responses []model.IssueResponse
	for rows.Next() {
		var (
			r        model.IssueResponse
			authorID sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.IssueID, &authorID, &r.Body, &r.IsSolution, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning response: %w", err)
		}
		if authorID.Valid {
			r.AuthorID = &authorID.Int64
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// MarkSolution flags one response as the accepted solution. The guard
// against a second solution is part of the UPDATE itself — one statement,
// no read-then-write race.
func (db *DB) MarkSolution(ctx context.Context, issueID, responseID int64) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE issue_responses SET is_solution = 1
		 WHERE id = ? AND issue_id = ?
		   AND NOT EXISTS (SELECT 1 FROM issue_responses WHERE issue_id = ? AND is_solution = 1)`,
		responseID, issueID, issueID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking solution on issue %d: %w", issueID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Either the response doesn't belong to the issue, or the issue
		// already has a solution. Distinguish for the caller.
		if _, err := db.GetResponseByID(ctx, responseID); err != nil {
			return err
		}
		return apperror.Conflict("solution", issueID)
	}
	return nil
}

// AddIssueVote records a helpful vote on an issue. One vote per voter.
func (db *DB) AddIssueVote(ctx context.Context, issueID, voterID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO issue_votes (issue_id, voter_id) VALUES (?, ?)`,
		issueID, voterID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("vote", issueID)
		}
		return fmt.Errorf("sqlite: recording issue vote: %w", err)
	}
	return nil
}

// AddResponseVote records a helpful vote on a response. One vote per voter.
func (db *DB) AddResponseVote(ctx context.Context, responseID, voterID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO response_votes (response_id, voter_id) VALUES (?, ?)`,
		responseID, voterID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("vote", responseID)
		}
		return fmt.Errorf("sqlite: recording response vote: %w", err)
	}
	return nil
}

// AddRating records a star rating of one account by another.
func (db *DB) AddRating(ctx context.Context, raterID, ratedID int64, stars int) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO ratings (rater_id, rated_id, stars) VALUES (?, ?, ?)`,
		raterID, ratedID, stars,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("rating", ratedID)
		}
		return fmt.Errorf("sqlite: recording rating: %w", err)
	}
	return nil
}
