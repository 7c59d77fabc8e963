package model

import "time"

// EventKind enumerates the point-earning (and point-losing) actions.
type EventKind string

const (
	EventSolutionMarked      EventKind = "solution_marked"       // response accepted as the solution
	EventHelpfulVoteGiven    EventKind = "helpful_vote_given"    // issue or response voted helpful
	EventGitHubUpvote        EventKind = "github_upvote"         // 👍 reaction on the mirrored issue
	EventGitHubDownvote      EventKind = "github_downvote"       // 👎 reaction on the mirrored issue
	EventFiveStarRating      EventKind = "five_star_rating"      // received a 5-star rating
	EventIssueGiven          EventKind = "issue_given"           // reported an issue
	EventIssueReceived       EventKind = "issue_received"        // received an issue on an owned project
	EventOfferOverduePenalty EventKind = "offer_overdue_penalty" // let a redeemed offer go overdue
)

// EventDelta returns the signed point delta for an event kind. Every kind is
// worth exactly ±1; weighting happens nowhere in the system.
// Unknown kinds return (0, false).
func EventDelta(kind EventKind) (int, bool) {
	switch kind {
	case EventSolutionMarked, EventHelpfulVoteGiven, EventGitHubUpvote,
		EventFiveStarRating, EventIssueGiven, EventIssueReceived:
		return 1, true
	case EventGitHubDownvote, EventOfferOverduePenalty:
		return -1, true
	}
	return 0, false
}

// EventSource distinguishes locally generated events from externally
// observed ones. External events carry a dedup key; local ones never do.
type EventSource string

const (
	SourceLocal  EventSource = "local"
	SourceGitHub EventSource = "github"
)

// ReputationEvent is one append-only ledger row. Rows are immutable once
// written — account deletion anonymizes content but never rewrites the
// ledger, so historical totals stay queryable for audit.
//
// DedupKey is nil for local events. For GitHub-sourced events it is the
// remote reaction identifier, and (account_id, dedup_key) is UNIQUE: applying
// the same external observation twice is a defined no-op, not an error.
type ReputationEvent struct {
	ID        int64       `json:"id"        db:"id"`
	AccountID int64       `json:"accountId" db:"account_id"`
	Kind      EventKind   `json:"kind"      db:"kind"`
	Delta     int         `json:"delta"     db:"delta"`
	Source    EventSource `json:"source"    db:"source"`
	DedupKey  *string     `json:"dedupKey"  db:"dedup_key"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}

// LeaderboardEntry is one row of the read-side aggregate: an account and its
// summed score. The leaderboard is always recomputable by replaying the
// event log — it is derived state, never the source of truth.
type LeaderboardEntry struct {
	AccountID int64     `json:"accountId"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"-"` // tie-break: earliest account first
}
