package model

import "time"

// IssueType categorizes an issue report.
type IssueType string

const (
	IssueBug      IssueType = "bug"
	IssueFeature  IssueType = "feature"
	IssueQuestion IssueType = "question"
	IssueSecurity IssueType = "security"
	IssueDocs     IssueType = "docs"
)

// ValidIssueType reports whether t is one of the recognized issue types.
func ValidIssueType(t IssueType) bool {
	switch t {
	case IssueBug, IssueFeature, IssueQuestion, IssueSecurity, IssueDocs:
		return true
	}
	return false
}

// IssueStatus is the local workflow state of an issue.
type IssueStatus string

const (
	StatusOpen       IssueStatus = "open"
	StatusInProgress IssueStatus = "in_progress"
	StatusResolved   IssueStatus = "resolved"
	StatusClosed     IssueStatus = "closed"
	StatusWontFix    IssueStatus = "wont_fix"
)

// ValidIssueStatus reports whether s is one of the recognized statuses.
func ValidIssueStatus(s IssueStatus) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed, StatusWontFix:
		return true
	}
	return false
}

// Issue is a tester-reported issue against a project.
//
// ProjectID and ReporterID are nullable foreign keys: the project may be
// deleted, and the reporter may erase their account. An issue survives both —
// content authored by an erased account stays, anonymized to "Deleted User".
// That is why these are pointers rather than plain int64s.
//
// The GitHub mirror of an issue lives in ExternalIssueLink, not here. A local
// issue is fully usable without one; sync failures never block local edits.
type Issue struct {
	ID         int64       `json:"id"         db:"id"`
	ProjectID  *int64      `json:"projectId"  db:"project_id"`
	ReporterID *int64      `json:"reporterId" db:"reporter_id"`
	Title      string      `json:"title"      db:"title"`
	Body       string      `json:"body"       db:"body"`
	Type       IssueType   `json:"type"       db:"issue_type"`
	Status     IssueStatus `json:"status"     db:"status"`
	CreatedAt  time.Time   `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time   `json:"updatedAt"  db:"updated_at"`
}

// IssueResponse is a reply on an issue. IsSolution is set when the issue's
// reporter marks the response as the accepted solution (at most one per
// issue); that action is what earns the response author a ledger point.
type IssueResponse struct {
	ID         int64     `json:"id"         db:"id"`
	IssueID    int64     `json:"issueId"    db:"issue_id"`
	AuthorID   *int64    `json:"authorId"   db:"author_id"` // nil once the author account is erased
	Body       string    `json:"body"       db:"body"`
	IsSolution bool      `json:"isSolution" db:"is_solution"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
}
