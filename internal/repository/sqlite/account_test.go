package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/model"
)

// newTestDB returns a fresh in-memory database, destroyed when the test
// finishes. Every test gets its own isolated schema.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestAccount creates an account with one identity and fails the test
// if it errors.
func createTestAccount(t *testing.T, db *DB, username, email string, provider model.Provider, providerID string) *model.Account {
	t.Helper()
	role := model.RoleTester
	if provider == model.ProviderGitHub {
		role = model.RoleDeveloper
	}
	account := &model.Account{
		Username: username,
		Email:    email,
		Role:     role,
	}
	identity := &model.ProviderIdentity{
		Provider:   provider,
		ProviderID: providerID,
	}
	if err := db.CreateAccount(context.Background(), account, identity); err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

func TestCreateAccount(t *testing.T) {
	db := newTestDB(t)

	account := &model.Account{
		Username: "tester_anna",
		Email:    "anna@example.com",
		Role:     model.RoleTester,
	}
	identity := &model.ProviderIdentity{
		Provider:   model.ProviderGoogle,
		ProviderID: "google-sub-1",
	}

	if err := db.CreateAccount(context.Background(), account, identity); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	if account.ID == 0 {
		t.Error("CreateAccount() did not set account.ID")
	}
	if account.CreatedAt.IsZero() {
		t.Error("CreateAccount() did not set account.CreatedAt")
	}
	if identity.AccountID != account.ID {
		t.Errorf("identity.AccountID = %d, want %d", identity.AccountID, account.ID)
	}
}

func TestCreateAccount_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "first", "same@example.com", model.ProviderGoogle, "g-1")

	dup := &model.Account{Username: "second", Email: "same@example.com", Role: model.RoleTester}
	err := db.CreateAccount(context.Background(), dup, &model.ProviderIdentity{
		Provider: model.ProviderGoogle, ProviderID: "g-2",
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateAccount() with duplicate email error = %v, want ErrConflict", err)
	}
}

func TestCreateAccount_DuplicateIdentity(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "first", "a@example.com", model.ProviderGitHub, "gh-42")

	dup := &model.Account{Username: "second", Email: "b@example.com", Role: model.RoleDeveloper}
	err := db.CreateAccount(context.Background(), dup, &model.ProviderIdentity{
		Provider: model.ProviderGitHub, ProviderID: "gh-42",
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("CreateAccount() with duplicate identity error = %v, want ErrConflict", err)
	}

	// The failed transaction must not have left a half-written account.
	if _, err := db.GetAccountByEmail(context.Background(), "b@example.com"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("account row leaked from rolled-back transaction (err = %v)", err)
	}
}

func TestGetAccountByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAccountByID(context.Background(), 9999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetAccountByID() error = %v, want ErrNotFound", err)
	}
}

func TestFindIdentity(t *testing.T) {
	db := newTestDB(t)
	account := createTestAccount(t, db, "dev_bob", "bob@example.com", model.ProviderGitHub, "gh-7")

	ident, err := db.FindIdentity(context.Background(), model.ProviderGitHub, "gh-7")
	if err != nil {
		t.Fatalf("FindIdentity() error = %v", err)
	}
	if ident.AccountID != account.ID {
		t.Errorf("AccountID = %d, want %d", ident.AccountID, account.ID)
	}

	if _, err := db.FindIdentity(context.Background(), model.ProviderGoogle, "gh-7"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("FindIdentity() with wrong provider error = %v, want ErrNotFound", err)
	}
}

func TestUpgradeToDeveloper(t *testing.T) {
	db := newTestDB(t)
	account := createTestAccount(t, db, "tester_anna", "anna@example.com", model.ProviderGoogle, "g-1")

	err := db.UpgradeToDeveloper(context.Background(), account.ID, &model.ProviderIdentity{
		Provider:   model.ProviderGitHub,
		ProviderID: "gh-100",
	}, "vault-blob")
	if err != nil {
		t.Fatalf("UpgradeToDeveloper() error = %v", err)
	}

	upgraded, err := db.GetAccountByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID() error = %v", err)
	}
	if upgraded.Role != model.RoleDeveloper {
		t.Errorf("Role = %q, want %q", upgraded.Role, model.RoleDeveloper)
	}
	if upgraded.EncryptedToken != "vault-blob" {
		t.Errorf("EncryptedToken = %q, want %q", upgraded.EncryptedToken, "vault-blob")
	}

	idents, err := db.ListIdentities(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("ListIdentities() error = %v", err)
	}
	if len(idents) != 2 {
		t.Fatalf("len(identities) = %d, want 2 (one per provider)", len(idents))
	}
}

func TestUsernameTaken(t *testing.T) {
	db := newTestDB(t)
	createTestAccount(t, db, "taken_name", "x@example.com", model.ProviderGoogle, "g-1")

	taken, err := db.UsernameTaken(context.Background(), "taken_name")
	if err != nil {
		t.Fatalf("UsernameTaken() error = %v", err)
	}
	if !taken {
		t.Error("UsernameTaken(existing) = false, want true")
	}

	taken, _ = db.UsernameTaken(context.Background(), "free_name")
	if taken {
		t.Error("UsernameTaken(free) = true, want false")
	}
}

func TestEraseAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner := createTestAccount(t, db, "dev_owner", "owner@example.com", model.ProviderGitHub, "gh-1")
	reporter := createTestAccount(t, db, "tester_rep", "rep@example.com", model.ProviderGoogle, "g-1")

	project := &model.Project{OwnerID: owner.ID, Name: "proj", RepoURL: "https://github.com/o/r"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	issue := &model.Issue{ProjectID: &project.ID, ReporterID: &reporter.ID, Title: "crash on save"}
	if err := db.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}

	// Give the reporter some ledger history before erasing them.
	applied, err := db.AppendEvent(ctx, &model.ReputationEvent{
		AccountID: reporter.ID, Kind: model.EventIssueGiven, Delta: 1, Source: model.SourceLocal,
	})
	if err != nil || !applied {
		t.Fatalf("AppendEvent() = (%v, %v), want applied", applied, err)
	}

	if err := db.EraseAccount(ctx, reporter.ID); err != nil {
		t.Fatalf("EraseAccount() error = %v", err)
	}

	// Account row gone.
	if _, err := db.GetAccountByID(ctx, reporter.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("erased account still readable (err = %v)", err)
	}

	// Authored issue survives, anonymized.
	got, err := db.GetIssueByID(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssueByID() after erasure error = %v", err)
	}
	if got.ReporterID != nil {
		t.Errorf("issue.ReporterID = %v, want nil (anonymized)", *got.ReporterID)
	}

	// Ledger total unchanged and still queryable for audit.
	score, err := db.AccountScore(ctx, reporter.ID)
	if err != nil {
		t.Fatalf("AccountScore() after erasure error = %v", err)
	}
	if score != 1 {
		t.Errorf("AccountScore() = %d, want 1 (ledger is immutable)", score)
	}

	// But the erased account no longer appears on the leaderboard.
	entries, err := db.SumScores(ctx, 10)
	if err != nil {
		t.Fatalf("SumScores() error = %v", err)
	}
	for _, e := range entries {
		if e.AccountID == reporter.ID {
			t.Error("erased account still appears on the leaderboard")
		}
	}
}

func TestEraseAccount_OwnerRemovesProjectsAndLinks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner := createTestAccount(t, db, "dev_owner", "owner@example.com", model.ProviderGitHub, "gh-1")

	project := &model.Project{OwnerID: owner.ID, Name: "proj", RepoURL: "https://github.com/o/r"}
	if err := db.CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	issue := &model.Issue{ProjectID: &project.ID, Title: "bug"}
	if err := db.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue() error = %v", err)
	}
	link := &model.ExternalIssueLink{IssueID: issue.ID, RepoOwner: "o", RepoName: "r"}
	if err := db.CreateLink(ctx, link); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if err := db.EraseAccount(ctx, owner.ID); err != nil {
		t.Fatalf("EraseAccount() error = %v", err)
	}

	if _, err := db.GetProjectByID(ctx, project.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("owned project survived erasure (err = %v)", err)
	}
	if _, err := db.GetLinkByIssue(ctx, issue.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("issue link survived erasure (err = %v)", err)
	}

	// The issue itself survives with project detached.
	got, err := db.GetIssueByID(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssueByID() error = %v", err)
	}
	if got.ProjectID != nil {
		t.Errorf("issue.ProjectID = %v, want nil after project removal", *got.ProjectID)
	}
}
