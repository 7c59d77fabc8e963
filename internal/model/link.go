package model

import "time"

// LinkState is the sync direction state of an ExternalIssueLink.
//
// STATE MACHINE:
//
//	pending-push ──push ok──→ synced
//	pending-push ──transient failures exhausted──→ push-failed (retryable)
//	any ──remote gone / token revoked──→ push-failed + terminal
//
// A pending-push link found on process restart is safe to retry: the remote
// call either never happened or its result was never recorded, and the push
// path tolerates re-running. Terminal links are excluded from reconciliation
// until the owning account re-links GitHub.
type LinkState string

const (
	LinkPendingPush LinkState = "pending-push"
	LinkSynced      LinkState = "synced"
	LinkPushFailed  LinkState = "push-failed"
)

// ExternalIssueLink maps a local issue to its mirrored GitHub issue.
//
// At most one link exists per local issue (UNIQUE on issue_id), and
// RemoteNumber is immutable once assigned — a mirror is created exactly once,
// then only reconciled.
//
// RemoteStateHash is an opaque fingerprint of the remote state observed by
// the last reconcile (ETag-like). When the fingerprint is unchanged the
// reconcile is a no-op, which is what makes repeated polling cheap.
type ExternalIssueLink struct {
	ID              int64     `json:"id"              db:"id"`
	IssueID         int64     `json:"issueId"         db:"issue_id"`
	RepoOwner       string    `json:"repoOwner"       db:"repo_owner"`
	RepoName        string    `json:"repoName"        db:"repo_name"`
	RemoteNumber    int       `json:"remoteNumber"    db:"remote_number"` // 0 until the push succeeds
	RemoteURL       string    `json:"remoteUrl"       db:"remote_url"`
	RemoteStateHash string    `json:"-"               db:"remote_state_hash"`
	State           LinkState `json:"state"           db:"state"`
	Terminal        bool      `json:"terminal"        db:"terminal"` // remote gone or unauthorized; needs re-link
	LastSyncedAt    time.Time `json:"lastSyncedAt"    db:"last_synced_at"`
	CreatedAt       time.Time `json:"createdAt"       db:"created_at"`
}

// Active reports whether the link should be considered by the reconcile
// poller: it must have a remote issue and must not be terminal.
func (l *ExternalIssueLink) Active() bool {
	return l.RemoteNumber > 0 && !l.Terminal
}
