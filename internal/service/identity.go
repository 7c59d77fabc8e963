// Package service holds the business logic layer. Services sit between the
// HTTP handlers and the repositories:
//
//	handler (HTTP) → service (business rules) → repository (DB)
//
// Services never touch HTTP concerns (cookies, status codes, routing) and
// are wired with interfaces so tests can substitute in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/rs/xid"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/auth"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
	"github.com/xdest/devboard/internal/vault"
)

// resolveStripes bounds the number of mutexes guarding concurrent identity
// resolution. Two callbacks for the same email always hash to the same
// stripe and therefore serialize.
const resolveStripes = 64

// maxUsernameProbes caps the sequential "name_2, name_3, ..." search before
// falling back to a random suffix.
const maxUsernameProbes = 50

// IdentityService reconciles OAuth sign-ins into accounts.
//
// The rules it enforces:
//   - GitHub sign-ins produce developers, Google sign-ins produce testers.
//   - Sign-ins reconcile by verified email: a Google login whose email
//     already belongs to an account attaches to it, a GitHub login upgrades
//     the account to developer. The upgrade is one-way — no later sign-in
//     ever demotes a developer.
//   - An email that maps to an account which already carries a different
//     identity for the same provider is ambiguous and rejected with
//     ErrIdentityConflict. Neither account is modified.
type IdentityService struct {
	accounts repository.AccountRepository
	links    repository.LinkRepository
	vault    *vault.Vault
	tokens   *auth.TokenService
	logger   *slog.Logger

	resolveMu [resolveStripes]sync.Mutex
}

func NewIdentityService(
	accounts repository.AccountRepository,
	links repository.LinkRepository,
	v *vault.Vault,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		accounts: accounts,
		links:    links,
		vault:    v,
		tokens:   tokens,
		logger:   logger,
	}
}

// AuthResult bundles the resolved account with its issued JWT so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	Account *model.Account
	Token   string
}

// Resolve maps an authenticated provider profile to exactly one account,
// creating or upgrading as needed, and issues a session token for it.
//
// Resolution for a given email is serialized through a striped mutex, and a
// lost race against a concurrent callback (surfacing as a unique-constraint
// conflict from the repository) is settled by re-resolving once: the
// winner's rows are visible by then, so the retry lands on the fast path.
func (s *IdentityService) Resolve(ctx context.Context, profile *auth.Profile) (*AuthResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("service/identity: profile must not be nil")
	}

	mu := s.stripe(profile.Email)
	mu.Lock()
	defer mu.Unlock()

	account, err := s.resolve(ctx, profile)
	if errors.Is(err, apperror.ErrConflict) {
		account, err = s.resolve(ctx, profile)
	}
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Generate(account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: generating token for account %d: %w", account.ID, err)
	}

	s.logger.Info("sign-in resolved",
		slog.Int64("accountID", account.ID),
		slog.String("provider", string(profile.Provider)),
		slog.String("role", string(account.Role)),
	)

	return &AuthResult{Account: account, Token: token}, nil
}

func (s *IdentityService) resolve(ctx context.Context, profile *auth.Profile) (*model.Account, error) {
	// Fast path: the (provider, providerID) pair is already bound.
	ident, err := s.accounts.FindIdentity(ctx, profile.Provider, profile.ProviderID)
	if err == nil {
		return s.refresh(ctx, ident.AccountID, profile)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/identity: looking up identity: %w", err)
	}

	// Unknown identity: reconcile by email.
	account, err := s.accounts.GetAccountByEmail(ctx, profile.Email)
	if errors.Is(err, apperror.ErrNotFound) {
		return s.register(ctx, profile)
	}
	if err != nil {
		return nil, fmt.Errorf("service/identity: looking up account by email: %w", err)
	}

	// The email's account already has an identity for this provider with a
	// different remote ID. Attaching would be guessing which remote user
	// the human is; refuse and touch nothing.
	existing, err := s.accounts.ListIdentities(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: listing identities for account %d: %w", account.ID, err)
	}
	for _, e := range existing {
		if e.Provider == profile.Provider {
			return nil, apperror.IdentityConflict(string(profile.Provider), profile.ProviderID, account.ID)
		}
	}

	identity := &model.ProviderIdentity{
		AccountID:  account.ID,
		Provider:   profile.Provider,
		ProviderID: profile.ProviderID,
	}

	switch profile.Provider {
	case model.ProviderGitHub:
		blob, err := s.vault.Encrypt(profile.AccessToken)
		if err != nil {
			return nil, err
		}
		if err := s.accounts.UpgradeToDeveloper(ctx, account.ID, identity, blob); err != nil {
			return nil, err
		}
		// Fresh credential: links parked terminal by a dead token are
		// workable again.
		if err := s.links.ResetTerminalLinks(ctx, account.ID); err != nil {
			return nil, fmt.Errorf("service/identity: reviving links for account %d: %w", account.ID, err)
		}
		s.logger.Info("account upgraded to developer", slog.Int64("accountID", account.ID))
	default:
		if err := s.accounts.AttachIdentity(ctx, identity); err != nil {
			return nil, err
		}
	}

	return s.accounts.GetAccountByID(ctx, account.ID)
}

// refresh handles a repeat sign-in on a known identity. GitHub logins carry
// a fresh access token; store it and revive any links its predecessor
// stranded.
func (s *IdentityService) refresh(ctx context.Context, accountID int64, profile *auth.Profile) (*model.Account, error) {
	if profile.Provider == model.ProviderGitHub && profile.AccessToken != "" {
		blob, err := s.vault.Encrypt(profile.AccessToken)
		if err != nil {
			return nil, err
		}
		if err := s.accounts.SetEncryptedToken(ctx, accountID, blob); err != nil {
			return nil, err
		}
		if err := s.links.ResetTerminalLinks(ctx, accountID); err != nil {
			return nil, fmt.Errorf("service/identity: reviving links for account %d: %w", accountID, err)
		}
	}
	return s.accounts.GetAccountByID(ctx, accountID)
}

// register creates a brand-new account for a profile nothing reconciles to.
func (s *IdentityService) register(ctx context.Context, profile *auth.Profile) (*model.Account, error) {
	username, err := s.availableUsername(ctx, profile.Username)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Username:  username,
		Email:     profile.Email,
		Role:      model.RoleTester,
		AvatarURL: profile.AvatarURL,
		Bio:       profile.Bio,
	}
	if profile.Provider == model.ProviderGitHub {
		account.Role = model.RoleDeveloper
		blob, err := s.vault.Encrypt(profile.AccessToken)
		if err != nil {
			return nil, err
		}
		account.EncryptedToken = blob
	}

	identity := &model.ProviderIdentity{
		Provider:   profile.Provider,
		ProviderID: profile.ProviderID,
	}
	if err := s.accounts.CreateAccount(ctx, account, identity); err != nil {
		return nil, err
	}

	s.logger.Info("account registered",
		slog.Int64("accountID", account.ID),
		slog.String("username", account.Username),
		slog.String("role", string(account.Role)),
	)
	return account, nil
}

// availableUsername finds a free username: the profile's own name if
// unclaimed, otherwise "name_2", "name_3", and so on. After
// maxUsernameProbes collisions it gives up on sequences and appends a
// random suffix, which cannot collide in practice.
func (s *IdentityService) availableUsername(ctx context.Context, base string) (string, error) {
	if base == "" {
		base = "user"
	}
	candidate := base
	for i := 2; i <= maxUsernameProbes; i++ {
		taken, err := s.accounts.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("service/identity: checking username %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	return fmt.Sprintf("%s_%s", base, xid.New().String()), nil
}

// GetAccountByID returns the account for the given internal ID, with its
// linked identities attached. Used by the /api/me handler after the
// middleware validates the session cookie.
func (s *IdentityService) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	account, err := s.accounts.GetAccountByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/identity: fetching account %d: %w", id, err)
	}
	idents, err := s.accounts.ListIdentities(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/identity: fetching identities for account %d: %w", id, err)
	}
	account.Identities = idents
	return account, nil
}

// DeleteAccount erases the caller's account: authored content is anonymized
// in place, owned projects and their links disappear, and the vault blob
// goes with the account row. The reputation ledger keeps its history.
func (s *IdentityService) DeleteAccount(ctx context.Context, accountID int64) error {
	if err := s.accounts.EraseAccount(ctx, accountID); err != nil {
		return fmt.Errorf("service/identity: erasing account %d: %w", accountID, err)
	}
	s.logger.Info("account erased", slog.Int64("accountID", accountID))
	return nil
}

func (s *IdentityService) stripe(email string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(email))
	return &s.resolveMu[h.Sum32()%resolveStripes]
}
