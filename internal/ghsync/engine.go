// Package ghsync mirrors local issues to GitHub and pulls reaction deltas
// back. It is the only code permitted to mutate ExternalIssueLink rows.
//
// Failure handling follows a two-tier taxonomy:
//   - transient (network, rate limit): pushes retry with bounded exponential
//     backoff, then degrade to a push-failed link plus a notification; the
//     local issue is never affected.
//   - terminal (token revoked, remote repo gone — 401/403/404): the link is
//     parked with the terminal flag and ignored until the owner re-links
//     GitHub with a fresh token.
package ghsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v42/github"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
	"github.com/xdest/devboard/internal/vault"
)

// appLabel is attached to every mirrored issue so developers can tell
// platform reports apart from native ones.
const appLabel = "devboard"

// RemoteClient is the slice of the GitHub API the engine needs. The real
// implementation wraps go-github; tests substitute a fake.
type RemoteClient interface {
	CreateIssue(ctx context.Context, owner, repo string, req *github.IssueRequest) (*github.Issue, error)
	GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error)
	EnsureLabel(ctx context.Context, owner, repo string) error
	ListReactions(ctx context.Context, owner, repo string, number int) ([]*github.Reaction, error)
}

// ClientFactory builds a RemoteClient authenticated as the repo owner. One
// client per push/reconcile: tokens rotate on every re-link, so caching one
// would risk using a stale credential.
type ClientFactory func(ctx context.Context, token string) RemoteClient

// Recorder appends reputation events. Satisfied by service.LedgerService.
type Recorder interface {
	Record(ctx context.Context, accountID int64, kind model.EventKind, source model.EventSource, dedupKey string) (bool, error)
}

// RetryOptions bounds the push retry schedule.
type RetryOptions struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  2 * time.Minute,
		MaxRetries:      4,
	}
}

// Engine pushes issues to GitHub and reconciles links against remote state.
//
// Concurrency: operations on the same link are serialized through a per-link
// mutex; different links proceed in parallel. No database transaction is
// ever held across a network call — the engine reads, talks to GitHub, then
// writes.
type Engine struct {
	links         repository.LinkRepository
	issues        repository.IssueRepository
	projects      repository.ProjectRepository
	accounts      repository.AccountRepository
	notifications repository.NotificationRepository
	ledger        Recorder
	vault         *vault.Vault
	newClient     ClientFactory
	retry         RetryOptions
	logger        *slog.Logger

	mu        sync.Mutex
	linkLocks map[int64]*sync.Mutex
}

func NewEngine(
	links repository.LinkRepository,
	issues repository.IssueRepository,
	projects repository.ProjectRepository,
	accounts repository.AccountRepository,
	notifications repository.NotificationRepository,
	ledger Recorder,
	v *vault.Vault,
	newClient ClientFactory,
	retry RetryOptions,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		links:         links,
		issues:        issues,
		projects:      projects,
		accounts:      accounts,
		notifications: notifications,
		ledger:        ledger,
		vault:         v,
		newClient:     newClient,
		retry:         retry,
		logger:        logger,
		linkLocks:     make(map[int64]*sync.Mutex),
	}
}

// NewGitHubClientFactory returns the production ClientFactory: a go-github
// client authenticated with a static token source.
func NewGitHubClientFactory() ClientFactory {
	return func(ctx context.Context, token string) RemoteClient {
		ts := oauth2StaticClient(ctx, token)
		return &remoteGitHub{client: github.NewClient(ts)}
	}
}

// Push mirrors a local issue to the repository its link names. Safe to call
// repeatedly: an already-pushed link is a no-op, a terminal link is refused.
//
// On success the link carries the remote issue number (written exactly once)
// and moves to synced. Exhausted retries move it to push-failed and notify
// the project owner; a terminal failure additionally parks the link.
func (e *Engine) Push(ctx context.Context, issueID int64) error {
	unlock := e.lockLink(issueID)
	defer unlock()

	link, err := e.links.GetLinkByIssue(ctx, issueID)
	if err != nil {
		return err
	}
	if link.Terminal {
		return apperror.SyncTerminal(fmt.Errorf("link for issue %d is parked until re-link", issueID))
	}
	if link.RemoteNumber > 0 {
		// Pushed already (possibly by a crashed predecessor whose state
		// update survived). Nothing to do.
		return nil
	}

	issue, err := e.issues.GetIssueByID(ctx, issueID)
	if err != nil {
		return err
	}

	owner, token, err := e.ownerToken(ctx, issue)
	if err != nil {
		e.parkCredentialFailure(ctx, link, owner, err)
		return err
	}

	client := e.newClient(ctx, token)

	// Label creation is best-effort: a 422 on an existing label is the
	// steady state, and a missing label never blocks the push.
	if err := client.EnsureLabel(ctx, link.RepoOwner, link.RepoName); err != nil {
		e.logger.Debug("label ensure failed", slog.String("error", err.Error()))
	}

	req := e.issueRequest(ctx, issue)

	var created *github.Issue
	operation := func() error {
		var opErr error
		created, opErr = client.CreateIssue(ctx, link.RepoOwner, link.RepoName, req)
		if opErr == nil {
			return nil
		}
		if isTerminal(opErr) {
			return backoff.Permanent(opErr)
		}
		e.logger.Warn("push attempt failed, will retry",
			slog.Int64("issueID", issueID),
			slog.String("error", opErr.Error()),
		)
		return opErr
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(e.retry.InitialInterval),
		backoff.WithMaxInterval(e.retry.MaxInterval),
		backoff.WithMaxElapsedTime(e.retry.MaxElapsedTime),
	), e.retry.MaxRetries)

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if isTerminal(err) {
			e.park(ctx, link, owner,
				fmt.Sprintf("issue %q could not be mirrored: GitHub access is revoked or the repository is gone; re-link GitHub to resume syncing", issue.Title))
			return apperror.SyncTerminal(err)
		}
		link.State = model.LinkPushFailed
		if uerr := e.links.UpdateLink(ctx, link); uerr != nil {
			e.logger.Error("failed to mark link push-failed", slog.String("error", uerr.Error()))
		}
		e.notify(ctx, owner, model.NotifySyncFailed,
			fmt.Sprintf("issue %q could not be mirrored to GitHub after several attempts", issue.Title))
		return apperror.SyncTransient(err)
	}

	link.RemoteNumber = created.GetNumber()
	link.RemoteURL = created.GetHTMLURL()
	link.State = model.LinkSynced
	link.LastSyncedAt = time.Now().UTC()
	if err := e.links.UpdateLink(ctx, link); err != nil {
		return fmt.Errorf("ghsync: recording pushed issue %d: %w", issueID, err)
	}

	e.logger.Info("issue mirrored to github",
		slog.Int64("issueID", issueID),
		slog.String("repo", link.RepoOwner+"/"+link.RepoName),
		slog.Int("remoteNumber", link.RemoteNumber),
	)
	return nil
}

// Reconcile pulls the remote issue and its reactions and applies the deltas
// locally: thumbs up/down become deduplicated ledger events for the
// reporter, and a closed remote issue closes the local one. A remote state
// identical to the last observed one short-circuits without any writes.
func (e *Engine) Reconcile(ctx context.Context, issueID int64) error {
	unlock := e.lockLink(issueID)
	defer unlock()

	link, err := e.links.GetLinkByIssue(ctx, issueID)
	if err != nil {
		return err
	}
	if !link.Active() {
		return apperror.SyncTerminal(fmt.Errorf("link for issue %d is not reconcilable", issueID))
	}

	issue, err := e.issues.GetIssueByID(ctx, link.IssueID)
	if err != nil {
		return err
	}

	owner, token, err := e.ownerToken(ctx, issue)
	if err != nil {
		e.parkCredentialFailure(ctx, link, owner, err)
		return err
	}

	client := e.newClient(ctx, token)

	remote, err := client.GetIssue(ctx, link.RepoOwner, link.RepoName, link.RemoteNumber)
	if err != nil {
		return e.reconcileFailure(ctx, link, owner, err)
	}
	reactions, err := client.ListReactions(ctx, link.RepoOwner, link.RepoName, link.RemoteNumber)
	if err != nil {
		return e.reconcileFailure(ctx, link, owner, err)
	}

	hash := remoteStateHash(remote, reactions)
	if hash == link.RemoteStateHash {
		return nil
	}

	// Apply reaction deltas. The dedup key makes replays harmless, so a
	// crash between ledger writes and the hash update just re-applies
	// no-ops next round.
	if issue.ReporterID != nil {
		for _, r := range reactions {
			var kind model.EventKind
			switch r.GetContent() {
			case "+1":
				kind = model.EventGitHubUpvote
			case "-1":
				kind = model.EventGitHubDownvote
			default:
				continue
			}
			key := fmt.Sprintf("reaction:%d", r.GetID())
			if _, err := e.ledger.Record(ctx, *issue.ReporterID, kind, model.SourceGitHub, key); err != nil {
				return fmt.Errorf("ghsync: recording %s for issue %d: %w", kind, issueID, err)
			}
		}
	}

	// Remote close wins over an open local workflow state, never the
	// other way around.
	if remote.GetState() == "closed" && issue.Status != model.StatusClosed &&
		issue.Status != model.StatusResolved && issue.Status != model.StatusWontFix {
		if err := e.issues.UpdateIssueStatus(ctx, issue.ID, model.StatusClosed); err != nil {
			return fmt.Errorf("ghsync: closing issue %d: %w", issue.ID, err)
		}
		e.logger.Info("issue closed from remote", slog.Int64("issueID", issue.ID))
	}

	link.RemoteStateHash = hash
	link.State = model.LinkSynced
	link.LastSyncedAt = time.Now().UTC()
	if err := e.links.UpdateLink(ctx, link); err != nil {
		return fmt.Errorf("ghsync: updating link for issue %d: %w", issueID, err)
	}
	return nil
}

// parkCredentialFailure parks the link when the owner's credential cannot
// produce a token. A missing or undecryptable blob never fixes itself; only
// a re-link (which rewrites the blob) can, so leaving the link recoverable
// would retry it forever. Other lookup errors leave the link alone.
func (e *Engine) parkCredentialFailure(ctx context.Context, link *model.ExternalIssueLink, ownerID int64, err error) {
	switch {
	case errors.Is(err, apperror.ErrVault):
		e.park(ctx, link, ownerID, "your stored GitHub credential is unreadable; re-link GitHub to resume syncing")
	case errors.Is(err, apperror.ErrSyncTerminal):
		e.park(ctx, link, ownerID, "this project has no usable GitHub credential; link GitHub to resume syncing")
	}
}

// reconcileFailure classifies a remote error during reconcile. Terminal
// failures park the link; transient ones are left for the next poll round.
func (e *Engine) reconcileFailure(ctx context.Context, link *model.ExternalIssueLink, ownerID int64, err error) error {
	if isTerminal(err) {
		e.park(ctx, link, ownerID,
			"a mirrored issue can no longer be reached on GitHub; re-link GitHub to resume syncing")
		return apperror.SyncTerminal(err)
	}
	return apperror.SyncTransient(err)
}

// park moves a link to terminal push-failed state and notifies the owner.
func (e *Engine) park(ctx context.Context, link *model.ExternalIssueLink, ownerID int64, message string) {
	link.State = model.LinkPushFailed
	link.Terminal = true
	if err := e.links.UpdateLink(ctx, link); err != nil {
		e.logger.Error("failed to park link",
			slog.Int64("linkID", link.ID),
			slog.String("error", err.Error()),
		)
	}
	e.notify(ctx, ownerID, model.NotifySyncTerminal, message)
	e.logger.Warn("link parked as terminal",
		slog.Int64("issueID", link.IssueID),
		slog.String("repo", link.RepoOwner+"/"+link.RepoName),
	)
}

func (e *Engine) notify(ctx context.Context, accountID int64, kind model.NotificationKind, body string) {
	if accountID == 0 {
		return
	}
	n := &model.Notification{AccountID: accountID, Kind: kind, Body: body}
	if err := e.notifications.CreateNotification(ctx, n); err != nil {
		e.logger.Error("failed to create notification",
			slog.Int64("accountID", accountID),
			slog.String("error", err.Error()),
		)
	}
}

// ownerToken resolves the issue's project owner and decrypts their vaulted
// GitHub token. Returns the owner's account ID even on error so callers can
// notify them.
func (e *Engine) ownerToken(ctx context.Context, issue *model.Issue) (int64, string, error) {
	if issue.ProjectID == nil {
		return 0, "", apperror.SyncTerminal(fmt.Errorf("issue %d has no project", issue.ID))
	}
	project, err := e.projects.GetProjectByID(ctx, *issue.ProjectID)
	if err != nil {
		return 0, "", err
	}
	account, err := e.accounts.GetAccountByID(ctx, project.OwnerID)
	if err != nil {
		return 0, "", err
	}
	if account.EncryptedToken == "" {
		return account.ID, "", apperror.SyncTerminal(fmt.Errorf("project owner %d has no linked GitHub credential", account.ID))
	}
	token, err := e.vault.Decrypt(account.EncryptedToken)
	if err != nil {
		return account.ID, "", err
	}
	return account.ID, token, nil
}

// issueRequest builds the remote issue payload: local title and body plus a
// provenance trailer naming the reporter, labeled with the app label and the
// issue type.
func (e *Engine) issueRequest(ctx context.Context, issue *model.Issue) *github.IssueRequest {
	reporter := model.DeletedUsername
	if issue.ReporterID != nil {
		if account, err := e.accounts.GetAccountByID(ctx, *issue.ReporterID); err == nil {
			reporter = account.Username
		}
	}

	body := strings.TrimRight(issue.Body, "\n")
	body += fmt.Sprintf("\n\n---\n*Reported via DevBoard by %s*", reporter)

	labels := []string{appLabel, string(issue.Type)}
	return &github.IssueRequest{
		Title:  github.String(issue.Title),
		Body:   github.String(body),
		Labels: &labels,
	}
}

func (e *Engine) lockLink(issueID int64) func() {
	e.mu.Lock()
	m, ok := e.linkLocks[issueID]
	if !ok {
		m = &sync.Mutex{}
		e.linkLocks[issueID] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// isTerminal reports whether a GitHub API error means the credential or the
// remote resource is gone for good. Rate limits are explicitly transient
// even though they surface as 403.
func isTerminal(err error) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return false
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case 401, 403, 404:
			return true
		}
	}
	return false
}

// remoteStateHash folds the observable remote state into a comparable
// fingerprint: issue state plus the sorted reaction IDs and contents.
func remoteStateHash(issue *github.Issue, reactions []*github.Reaction) string {
	parts := make([]string, 0, len(reactions)+1)
	parts = append(parts, "state="+issue.GetState())
	for _, r := range reactions {
		parts = append(parts, fmt.Sprintf("%d=%s", r.GetID(), r.GetContent()))
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:])
}
