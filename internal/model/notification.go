package model

import "time"

// NotificationKind categorizes what a notification is about.
type NotificationKind string

const (
	NotifySyncFailed   NotificationKind = "sync_failed"   // push retries exhausted
	NotifySyncTerminal NotificationKind = "sync_terminal" // remote gone or token revoked, re-link needed
)

// Notification is a non-blocking message surfaced to an account, e.g. "your
// issue could not be mirrored to GitHub". Sync failures never block local
// operations — this row is the entire user-visible consequence.
//
// Notifications use xid string IDs (they are high-churn, never joined
// against, and created outside any ordering requirement).
type Notification struct {
	ID        string           `json:"id"        db:"id"`
	AccountID int64            `json:"accountId" db:"account_id"`
	Kind      NotificationKind `json:"kind"      db:"kind"`
	Body      string           `json:"body"      db:"body"`
	Read      bool             `json:"read"      db:"is_read"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}
