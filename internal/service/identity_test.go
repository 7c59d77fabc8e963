package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/auth"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
	"github.com/xdest/devboard/internal/vault"
)

// fakeAccountRepo is an in-memory implementation of
// repository.AccountRepository. A hand-written fake (not a mock framework)
// keeps the tests dependency-free and readable. It emulates the real
// schema's unique constraints on email, username, and (provider, providerID)
// so the resolver's conflict handling can be exercised.
type fakeAccountRepo struct {
	accounts   map[int64]*model.Account
	identities []model.ProviderIdentity
	nextID     int64

	// set to a non-nil error to simulate a database failure
	findErr error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[int64]*model.Account), nextID: 1}
}

func (f *fakeAccountRepo) identityTaken(provider model.Provider, providerID string) bool {
	for _, i := range f.identities {
		if i.Provider == provider && i.ProviderID == providerID {
			return true
		}
	}
	return false
}

func (f *fakeAccountRepo) CreateAccount(ctx context.Context, account *model.Account, identity *model.ProviderIdentity) error {
	for _, a := range f.accounts {
		if a.Email == account.Email {
			return apperror.Conflict("account", account.Email)
		}
		if a.Username == account.Username {
			return apperror.Conflict("account", account.Username)
		}
	}
	if f.identityTaken(identity.Provider, identity.ProviderID) {
		return apperror.Conflict("identity", identity.ProviderID)
	}
	account.ID = f.nextID
	f.nextID++
	account.CreatedAt = time.Now()
	copied := *account
	f.accounts[account.ID] = &copied
	identity.AccountID = account.ID
	f.identities = append(f.identities, *identity)
	return nil
}

func (f *fakeAccountRepo) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, apperror.NotFound("account", id)
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAccountRepo) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	for _, a := range f.accounts {
		if a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("account", email)
}

func (f *fakeAccountRepo) FindIdentity(ctx context.Context, provider model.Provider, providerID string) (*model.ProviderIdentity, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, i := range f.identities {
		if i.Provider == provider && i.ProviderID == providerID {
			copied := i
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("identity", providerID)
}

func (f *fakeAccountRepo) ListIdentities(ctx context.Context, accountID int64) ([]model.ProviderIdentity, error) {
	var out []model.ProviderIdentity
	for _, i := range f.identities {
		if i.AccountID == accountID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) UpgradeToDeveloper(ctx context.Context, accountID int64, identity *model.ProviderIdentity, encryptedToken string) error {
	if f.identityTaken(identity.Provider, identity.ProviderID) {
		return apperror.Conflict("identity", identity.ProviderID)
	}
	a, ok := f.accounts[accountID]
	if !ok {
		return apperror.NotFound("account", accountID)
	}
	identity.AccountID = accountID
	f.identities = append(f.identities, *identity)
	a.Role = model.RoleDeveloper
	a.EncryptedToken = encryptedToken
	return nil
}

func (f *fakeAccountRepo) AttachIdentity(ctx context.Context, identity *model.ProviderIdentity) error {
	if f.identityTaken(identity.Provider, identity.ProviderID) {
		return apperror.Conflict("identity", identity.ProviderID)
	}
	f.identities = append(f.identities, *identity)
	return nil
}

func (f *fakeAccountRepo) SetEncryptedToken(ctx context.Context, accountID int64, blob string) error {
	a, ok := f.accounts[accountID]
	if !ok {
		return apperror.NotFound("account", accountID)
	}
	a.EncryptedToken = blob
	return nil
}

func (f *fakeAccountRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	for _, a := range f.accounts {
		if a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccountRepo) EraseAccount(ctx context.Context, accountID int64) error {
	if _, ok := f.accounts[accountID]; !ok {
		return apperror.NotFound("account", accountID)
	}
	delete(f.accounts, accountID)
	kept := f.identities[:0]
	for _, i := range f.identities {
		if i.AccountID != accountID {
			kept = append(kept, i)
		}
	}
	f.identities = kept
	return nil
}

// fakeLinkRepo records ResetTerminalLinks calls; the identity tests need
// nothing else from the link store.
type fakeLinkRepo struct {
	resetOwners []int64
}

func (f *fakeLinkRepo) CreateLink(ctx context.Context, link *model.ExternalIssueLink) error {
	return nil
}
func (f *fakeLinkRepo) GetLinkByIssue(ctx context.Context, issueID int64) (*model.ExternalIssueLink, error) {
	return nil, apperror.NotFound("link", issueID)
}
func (f *fakeLinkRepo) UpdateLink(ctx context.Context, link *model.ExternalIssueLink) error {
	return nil
}
func (f *fakeLinkRepo) ListActiveLinks(ctx context.Context) ([]model.ExternalIssueLink, error) {
	return nil, nil
}
func (f *fakeLinkRepo) ListPendingLinks(ctx context.Context) ([]model.ExternalIssueLink, error) {
	return nil, nil
}
func (f *fakeLinkRepo) ResetTerminalLinks(ctx context.Context, ownerID int64) error {
	f.resetOwners = append(f.resetOwners, ownerID)
	return nil
}

var _ repository.AccountRepository = (*fakeAccountRepo)(nil)
var _ repository.LinkRepository = (*fakeLinkRepo)(nil)

func newTestIdentityService(t *testing.T, accounts *fakeAccountRepo, links *fakeLinkRepo) *IdentityService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	v, err := vault.New("test-vault-master-secret")
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewIdentityService(accounts, links, v, ts, logger)
}

func githubProfile(id, username, email string) *auth.Profile {
	return &auth.Profile{
		Provider:    model.ProviderGitHub,
		ProviderID:  id,
		Email:       email,
		Username:    username,
		AccessToken: "gho_test_token",
	}
}

func googleProfile(id, username, email string) *auth.Profile {
	return &auth.Profile{
		Provider:   model.ProviderGoogle,
		ProviderID: id,
		Email:      email,
		Username:   username,
	}
}

func TestResolve_NewGoogleAccountIsTester(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := newTestIdentityService(t, accounts, &fakeLinkRepo{})

	result, err := svc.Resolve(context.Background(), googleProfile("g-1", "anna", "anna@example.com"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if result.Account.Role != model.RoleTester {
		t.Errorf("Role = %q, want %q", result.Account.Role, model.RoleTester)
	}
	if result.Account.EncryptedToken != "" {
		t.Error("Google account must not carry a vault blob")
	}
	if result.Token == "" {
		t.Error("Resolve() returned empty session token")
	}
}

func TestResolve_NewGitHubAccountIsDeveloperWithVaultedToken(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := newTestIdentityService(t, accounts, &fakeLinkRepo{})

	result, err := svc.Resolve(context.Background(), githubProfile("gh-1", "bob", "bob@example.com"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if result.Account.Role != model.RoleDeveloper {
		t.Errorf("Role = %q, want %q", result.Account.Role, model.RoleDeveloper)
	}
	blob := accounts.accounts[result.Account.ID].EncryptedToken
	if blob == "" {
		t.Fatal("GitHub account has no vault blob")
	}
	if blob == "gho_test_token" {
		t.Error("access token stored in plaintext")
	}
}

func TestResolve_RepeatSignInIsStable(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := newTestIdentityService(t, accounts, &fakeLinkRepo{})
	ctx := context.Background()

	first, err := svc.Resolve(ctx, githubProfile("gh-1", "bob", "bob@example.com"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := svc.Resolve(ctx, githubProfile("gh-1", "bob", "bob@example.com"))
	if err != nil {
		t.Fatalf("Resolve() second error = %v", err)
	}

	if first.Account.ID != second.Account.ID {
		t.Errorf("repeat sign-in produced account %d, want %d", second.Account.ID, first.Account.ID)
	}
	if len(accounts.accounts) != 1 {
		t.Errorf("account count = %d, want 1", len(accounts.accounts))
	}
}

func TestResolve_GitHubUpgradesExistingTester(t *testing.T) {
	accounts := newFakeAccountRepo()
	links := &fakeLinkRepo{}
	svc := newTestIdentityService(t, accounts, links)
	ctx := context.Background()

	tester, err := svc.Resolve(ctx, googleProfile("g-1", "anna", "anna@example.com"))
	if err != nil {
		t.Fatalf("Resolve(google) error = %v", err)
	}

	upgraded, err := svc.Resolve(ctx, githubProfile("gh-1", "anna-gh", "anna@example.com"))
	if err != nil {
		t.Fatalf("Resolve(github) error = %v", err)
	}

	if upgraded.Account.ID != tester.Account.ID {
		t.Fatalf("upgrade created a new account %d, want %d", upgraded.Account.ID, tester.Account.ID)
	}
	if upgraded.Account.Role != model.RoleDeveloper {
		t.Errorf("Role = %q, want %q", upgraded.Account.Role, model.RoleDeveloper)
	}
	if accounts.accounts[tester.Account.ID].EncryptedToken == "" {
		t.Error("upgraded account has no vault blob")
	}
	if len(links.resetOwners) != 1 || links.resetOwners[0] != tester.Account.ID {
		t.Errorf("terminal links not revived for owner %d (resets: %v)", tester.Account.ID, links.resetOwners)
	}
}

func TestResolve_GoogleNeverDowngradesDeveloper(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := newTestIdentityService(t, accounts, &fakeLinkRepo{})
	ctx := context.Background()

	dev, err := svc.Resolve(ctx, githubProfile("gh-1", "bob", "bob@example.com"))
	if err != nil {
		t.Fatalf("Resolve(github) error = %v", err)
	}

	result, err := svc.Resolve(ctx, googleProfile("g-1", "bob-g", "bob@example.com"))
	if err != nil {
		t.Fatalf("Resolve(google) error = %v", err)
	}

	if result.Account.ID != dev.Account.ID {
		t.Fatalf("google login created a new account %d, want %d", result.Account.ID, dev.Account.ID)
	}
	if result.Account.Role != model.RoleDeveloper {
		t.Errorf("Role = %q after google login, want %q (upgrade is one-way)", result.Account.Role, model.RoleDeveloper)
	}

	idents, _ := accounts.ListIdentities(ctx, dev.Account.ID)
	if len(idents) != 2 {
		t.Errorf("len(identities) = %d, want 2", len(idents))
	}
}

func TestResolve_IdentityConflict(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := newTestIdentityService(t, accounts, &fakeLinkRepo{})
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, githubProfile("gh-1", "bob", "bob@example.com")); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// A different GitHub user claiming the same email: the account already
	// has a GitHub identity with another remote ID.
	_, err := svc.Resolve(ctx, githubProfile("gh-2", "impostor", "bob@example.com"))
	if !errors.Is(err, apperror.ErrIdentityConflict) {
		t.Fatalf("Resolve() error = %v, want ErrIdentityConflict", err)
	}

	// Neither account was modified: still one account, one identity.
	if len(accounts.accounts) != 1 {
		t.Errorf("account count = %d, want 1", len(accounts.accounts))
	}
	if len(accounts.identities) != 1 {
		t.Errorf("identity count = %d, want 1", len(accounts.identities))
	}
}

func TestResolve_RefreshStoresNewTokenAndRevivesLinks(t *testing.T) {
	accounts := newFakeAccountRepo()
	links := &fakeLinkRepo{}
	svc := newTestIdentityService(t, accounts, links)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, githubProfile("gh-1", "bob", "bob@example.com"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	firstBlob := accounts.accounts[first.Account.ID].EncryptedToken

	profile := githubProfile("gh-1", "bob", "bob@example.com")
	profile.AccessToken = "gho_rotated_token"
	if _, err := svc.Resolve(ctx, profile); err != nil {
		t.Fatalf("Resolve() second error = %v", err)
	}

	if accounts.accounts[first.Account.ID].EncryptedToken == firstBlob {
		t.Error("repeat sign-in did not replace the vault blob")
	}
	if len(links.resetOwners) == 0 {
		t.Error("repeat GitHub sign-in did not revive terminal links")
	}
}

func TestResolve_UsernameCollisionGetsSuffix(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := newTestIdentityService(t, accounts, &fakeLinkRepo{})
	ctx := context.Background()

	var usernames []string
	for i := 0; i < 3; i++ {
		result, err := svc.Resolve(ctx, googleProfile(
			fmt.Sprintf("g-%d", i), "anna", fmt.Sprintf("anna%d@example.com", i),
		))
		if err != nil {
			t.Fatalf("Resolve() %d error = %v", i, err)
		}
		usernames = append(usernames, result.Account.Username)
	}

	want := []string{"anna", "anna_2", "anna_3"}
	for i, w := range want {
		if usernames[i] != w {
			t.Errorf("usernames[%d] = %q, want %q", i, usernames[i], w)
		}
	}
}

func TestResolve_EmptyUsernameFallsBack(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := newTestIdentityService(t, accounts, &fakeLinkRepo{})

	result, err := svc.Resolve(context.Background(), googleProfile("g-1", "", "noname@example.com"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.Account.Username != "user" {
		t.Errorf("Username = %q, want %q", result.Account.Username, "user")
	}
}

func TestResolve_NilProfile(t *testing.T) {
	svc := newTestIdentityService(t, newFakeAccountRepo(), &fakeLinkRepo{})
	if _, err := svc.Resolve(context.Background(), nil); err == nil {
		t.Fatal("Resolve(nil) did not error")
	}
}

func TestDeleteAccount(t *testing.T) {
	accounts := newFakeAccountRepo()
	svc := newTestIdentityService(t, accounts, &fakeLinkRepo{})
	ctx := context.Background()

	result, err := svc.Resolve(ctx, googleProfile("g-1", "anna", "anna@example.com"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if err := svc.DeleteAccount(ctx, result.Account.ID); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}
	if _, err := svc.GetAccountByID(ctx, result.Account.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetAccountByID() after delete error = %v, want ErrNotFound", err)
	}
}
