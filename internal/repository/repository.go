// Package repository defines the storage interfaces the service layer
// depends on. The sqlite subpackage provides the real implementation; tests
// substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/xdest/devboard/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// AccountRepository manages accounts and their linked provider identities.
//
// CreateAccount and UpgradeToDeveloper write the account and identity rows in
// one transaction — the identity resolver relies on the UNIQUE constraints on
// accounts.email and identities(provider, provider_id) firing atomically.
type AccountRepository interface {
	// CreateAccount inserts a new account together with its first provider
	// identity. Returns apperror.ErrConflict if the email, username, or
	// identity pair already exists.
	CreateAccount(ctx context.Context, account *model.Account, identity *model.ProviderIdentity) error

	GetAccountByID(ctx context.Context, id int64) (*model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindIdentity looks up a provider identity by its (provider, provider_id)
	// pair. Returns apperror.ErrNotFound if the pair is unknown.
	FindIdentity(ctx context.Context, provider model.Provider, providerID string) (*model.ProviderIdentity, error)
	ListIdentities(ctx context.Context, accountID int64) ([]model.ProviderIdentity, error)

	// UpgradeToDeveloper attaches a GitHub identity to an existing tester
	// account, flips its role to developer, and stores the vaulted token —
	// all in one transaction. The role flip is one-way.
	UpgradeToDeveloper(ctx context.Context, accountID int64, identity *model.ProviderIdentity, encryptedToken string) error

	// AttachIdentity adds a provider identity to an existing account without
	// touching its role. Used when a Google login reconciles by email onto
	// an account that already exists.
	AttachIdentity(ctx context.Context, identity *model.ProviderIdentity) error

	// SetEncryptedToken replaces the stored vault blob (token refresh on a
	// repeat GitHub login).
	SetEncryptedToken(ctx context.Context, accountID int64, blob string) error

	UsernameTaken(ctx context.Context, username string) (bool, error)

	// EraseAccount anonymizes everything the account authored (issues and
	// responses keep their rows with a NULL author), removes owned projects
	// and their links, and deletes the account row including the vault
	// blob. Ledger rows are left untouched.
	EraseAccount(ctx context.Context, accountID int64) error
}

// ProjectRepository manages published projects.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *model.Project) error
	GetProjectByID(ctx context.Context, id int64) (*model.Project, error)
	ListProjects(ctx context.Context, opts ListOptions) ([]model.Project, error)
	DeleteProject(ctx context.Context, id int64) error
}

// IssueRepository manages issues, responses, helpful votes, and ratings.
type IssueRepository interface {
	CreateIssue(ctx context.Context, issue *model.Issue) error
	GetIssueByID(ctx context.Context, id int64) (*model.Issue, error)
	ListIssuesByProject(ctx context.Context, projectID int64, opts ListOptions) ([]model.Issue, error)
	UpdateIssueStatus(ctx context.Context, id int64, status model.IssueStatus) error

	CreateResponse(ctx context.Context, response *model.IssueResponse) error
	GetResponseByID(ctx context.Context, id int64) (*model.IssueResponse, error)
	ListResponses(ctx context.Context, issueID int64) ([]model.IssueResponse, error)

	// MarkSolution flags one response as the issue's accepted solution.
	// Returns apperror.ErrConflict if the issue already has one.
	MarkSolution(ctx context.Context, issueID, responseID int64) error

	// AddIssueVote / AddResponseVote record a helpful vote. One vote per
	// (voter, target) — a duplicate returns apperror.ErrConflict.
	AddIssueVote(ctx context.Context, issueID, voterID int64) error
	AddResponseVote(ctx context.Context, responseID, voterID int64) error

	// AddRating records a star rating of one account by another. One rating
	// per (rater, rated) pair; duplicates return apperror.ErrConflict.
	AddRating(ctx context.Context, raterID, ratedID int64, stars int) error
}

// LinkRepository manages ExternalIssueLink rows — the only entity the sync
// engine is permitted to mutate.
type LinkRepository interface {
	// CreateLink inserts a link in pending-push state. The UNIQUE
	// constraint on issue_id enforces at most one link per issue.
	CreateLink(ctx context.Context, link *model.ExternalIssueLink) error

	GetLinkByIssue(ctx context.Context, issueID int64) (*model.ExternalIssueLink, error)
	UpdateLink(ctx context.Context, link *model.ExternalIssueLink) error

	// ListActiveLinks returns links eligible for reconciliation: pushed,
	// not terminal.
	ListActiveLinks(ctx context.Context) ([]model.ExternalIssueLink, error)

	// ListPendingLinks returns pending-push links — the crash-recovery
	// marker; a pending link found on restart is safe to retry.
	ListPendingLinks(ctx context.Context) ([]model.ExternalIssueLink, error)

	// ResetTerminalLinks clears the terminal flag on all of an owner's
	// links: pushed links go back to synced, unpushed ones to pending-push.
	// Called when the owner re-links GitHub.
	ResetTerminalLinks(ctx context.Context, ownerID int64) error
}

// LedgerRepository is the append-only reputation event store.
type LedgerRepository interface {
	// AppendEvent appends one ledger row. When the event carries a dedup
	// key and a row with the same (account_id, dedup_key) already exists,
	// it reports applied=false and writes nothing — the check and the
	// insert are a single atomic statement.
	AppendEvent(ctx context.Context, event *model.ReputationEvent) (applied bool, err error)

	// SumScores computes the leaderboard by summation over the event log:
	// descending score, ties broken by earliest account creation.
	SumScores(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)

	// AccountScore sums one account's deltas. Works for erased accounts
	// too — the ledger outlives the account row.
	AccountScore(ctx context.Context, accountID int64) (int, error)

	ListEvents(ctx context.Context, accountID int64) ([]model.ReputationEvent, error)
}

// NotificationRepository stores the non-blocking sync failure notices.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, accountID int64) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string, accountID int64) error
}
