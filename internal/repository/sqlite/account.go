package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// modernc.org/sqlite surfaces these as plain errors carrying SQLite's
// canonical message, so a substring check is the reliable test.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const accountColumns = `id, username, email, role, avatar_url, bio, encrypted_token, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.Role,
		&a.AvatarURL,
		&a.Bio,
		&a.EncryptedToken,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a new account together with its first provider
// identity in one transaction. The UNIQUE constraints on email, username,
// and (provider, provider_id) all fire inside this transaction — the
// identity resolver treats the resulting ErrConflict as "re-resolve".
func (db *DB) CreateAccount(ctx context.Context, account *model.Account, identity *model.ProviderIdentity) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	res, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (username, email, role, avatar_url, bio, encrypted_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.Username,
		account.Email,
		account.Role,
		account.AvatarURL,
		account.Bio,
		account.EncryptedToken,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account", account.Email)
		}
		return fmt.Errorf("sqlite: inserting account (email=%s): %w", account.Email, err)
	}

	account.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading account id: %w", err)
	}

	identity.AccountID = account.ID
	identity.CreatedAt = now
	res, err = tx.ExecContext(ctx,
		`INSERT INTO identities (account_id, provider, provider_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		identity.AccountID,
		identity.Provider,
		identity.ProviderID,
		identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("identity", identity.ProviderID)
		}
		return fmt.Errorf("sqlite: inserting identity (%s:%s): %w", identity.Provider, identity.ProviderID, err)
	}
	identity.ID, _ = res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing account insert: %w", err)
	}
	return nil
}

// GetAccountByID retrieves an account by its numeric ID.
// Returns apperror.ErrNotFound if no account exists with that ID.
func (db *DB) GetAccountByID(ctx context.Context, id int64) (*model.Account, error) {
	a, err := scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", id)
		}
		return nil, fmt.Errorf("sqlite: getting account %d: %w", id, err)
	}
	return a, nil
}

// GetAccountByEmail retrieves an account by email — the resolver's
// reconciliation key. Returns apperror.ErrNotFound when unknown.
func (db *DB) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := scanAccount(db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", email)
		}
		return nil, fmt.Errorf("sqlite: getting account by email: %w", err)
	}
	return a, nil
}

// FindIdentity looks up a provider identity by its (provider, provider_id)
// pair — the resolver's fast path.
func (db *DB) FindIdentity(ctx context.Context, provider model.Provider, providerID string) (*model.ProviderIdentity, error) {
	var ident model.ProviderIdentity
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, account_id, provider, provider_id, created_at
		 FROM identities WHERE provider = ? AND provider_id = ?`,
		provider, providerID,
	).Scan(&ident.ID, &ident.AccountID, &ident.Provider, &ident.ProviderID, &ident.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("identity", fmt.Sprintf("%s:%s", provider, providerID))
		}
		return nil, fmt.Errorf("sqlite: finding identity %s:%s: %w", provider, providerID, err)
	}
	return &ident, nil
}

// ListIdentities returns all provider identities linked to an account.
func (db *DB) ListIdentities(ctx context.Context, accountID int64) ([]model.ProviderIdentity, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, account_id, provider, provider_id, created_at
		 FROM identities WHERE account_id = ? ORDER BY created_at`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing identities for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var idents []model.ProviderIdentity
	for rows.Next() {
		var ident model.ProviderIdentity
		if err := rows.Scan(&ident.ID, &ident.AccountID, &ident.Provider, &ident.ProviderID, &ident.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning identity: %w", err)
		}
		idents = append(idents, ident)
	}
	return idents, rows.Err()
}

// UpgradeToDeveloper performs the one-way tester→developer transition:
// attach the GitHub identity, flip the role, store the vault blob — one
// transaction, so a concurrent duplicate callback cannot observe a half
// upgrade.
func (db *DB) UpgradeToDeveloper(ctx context.Context, accountID int64, identity *model.ProviderIdentity, encryptedToken string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	identity.AccountID = accountID
	identity.CreatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO identities (account_id, provider, provider_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		identity.AccountID,
		identity.Provider,
		identity.ProviderID,
		identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("identity", identity.ProviderID)
		}
		return fmt.Errorf("sqlite: attaching identity to account %d: %w", accountID, err)
	}
	identity.ID, _ = res.LastInsertId()

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET role = ?, encrypted_token = ?, updated_at = ? WHERE id = ?`,
		model.RoleDeveloper,
		encryptedToken,
		time.Now().UTC(),
		accountID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upgrading account %d: %w", accountID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing upgrade: %w", err)
	}
	return nil
}

// AttachIdentity adds a provider identity to an existing account, leaving
// the role alone.
func (db *DB) AttachIdentity(ctx context.Context, identity *model.ProviderIdentity) error {
	identity.CreatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO identities (account_id, provider, provider_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		identity.AccountID,
		identity.Provider,
		identity.ProviderID,
		identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("identity", identity.ProviderID)
		}
		return fmt.Errorf("sqlite: attaching identity to account %d: %w", identity.AccountID, err)
	}
	identity.ID, _ = res.LastInsertId()
	return nil
}

// SetEncryptedToken replaces the stored vault blob (token refresh).
func (db *DB) SetEncryptedToken(ctx context.Context, accountID int64, blob string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET encrypted_token = ?, updated_at = ? WHERE id = ?`,
		blob, time.Now().UTC(), accountID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating token for account %d: %w", accountID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("account", accountID)
	}
	return nil
}

// UsernameTaken reports whether a username is already in use.
func (db *DB) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE username = ?`, username,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking username %q: %w", username, err)
	}
	return count > 0, nil
}

// EraseAccount implements the deletion flow: anonymize authored content,
// remove owned projects and their issue links, and purge the account row
// (which erases the vault blob and cascades identities, votes, ratings, and
// notifications). Reputation events are deliberately untouched.
func (db *DB) EraseAccount(ctx context.Context, accountID int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Authored content survives, anonymized. The presentation layer
	// resolves a NULL author to "Deleted User".
	if _, err := tx.ExecContext(ctx,
		`UPDATE issues SET reporter_id = NULL WHERE reporter_id = ?`, accountID); err != nil {
		return fmt.Errorf("sqlite: anonymizing issues: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE issue_responses SET author_id = NULL WHERE author_id = ?`, accountID); err != nil {
		return fmt.Errorf("sqlite: anonymizing responses: %w", err)
	}

	// Mirrors of issues that lived on the erased developer's repositories
	// are meaningless without the owner; drop the links outright. The
	// issues themselves stay (project_id goes NULL via the FK).
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM issue_links WHERE issue_id IN
		   (SELECT id FROM issues WHERE project_id IN
		     (SELECT id FROM projects WHERE owner_id = ?))`, accountID); err != nil {
		return fmt.Errorf("sqlite: removing issue links: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM projects WHERE owner_id = ?`, accountID); err != nil {
		return fmt.Errorf("sqlite: removing projects: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting account %d: %w", accountID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("account", accountID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing account erasure: %w", err)
	}
	return nil
}
