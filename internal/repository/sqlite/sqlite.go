// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// We use modernc.org/sqlite — a pure Go translation of SQLite — so no C
// compiler is needed and cross-compilation stays painless. The blank import
// registers the driver with database/sql under the name "sqlite".
//
// Several UNIQUE constraints in the schema are load-bearing, not incidental:
//   - accounts.email            → one Account per email (identity resolver)
//   - identities(provider, provider_id) → a provider identity belongs to at
//     most one account (conflict detection)
//   - issue_links.issue_id      → at most one GitHub mirror per issue
//   - reputation_events(account_id, dedup_key) → idempotent application of
//     externally observed events
//
// The resolver and the ledger treat a constraint violation as a signal
// (re-resolve, or Deduplicated), never as a plain error to surface.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements all repository interfaces.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/devboard.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces an immediate connection so a bad path or permissions
	// problem surfaces here, not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight — a must for
	// a web server sharing one database file.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite; the anonymization rules
	// (ON DELETE SET NULL / CASCADE) depend on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	// Accounts and their linked provider identities. Identities cascade
	// with the account; the vault blob lives in encrypted_token and is
	// erased together with the row.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			username        TEXT NOT NULL UNIQUE,
			email           TEXT NOT NULL UNIQUE,
			role            TEXT NOT NULL,
			avatar_url      TEXT NOT NULL DEFAULT '',
			bio             TEXT NOT NULL DEFAULT '',
			encrypted_token TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS identities (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id  INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			provider    TEXT NOT NULL,
			provider_id TEXT NOT NULL,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(provider, provider_id)
		);
		CREATE INDEX IF NOT EXISTS idx_identities_account ON identities(account_id);
	`)
	if err != nil {
		return fmt.Errorf("creating account tables: %w", err)
	}

	// Projects and issues. Issue author columns are nullable on purpose:
	// deleting a project or erasing an account leaves the issue rows in
	// place with a NULL foreign key ("Deleted User" at display time).
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id    INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			repo_url    TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS issues (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id  INTEGER REFERENCES projects(id) ON DELETE SET NULL,
			reporter_id INTEGER REFERENCES accounts(id) ON DELETE SET NULL,
			title       TEXT NOT NULL,
			body        TEXT NOT NULL DEFAULT '',
			issue_type  TEXT NOT NULL DEFAULT 'bug',
			status      TEXT NOT NULL DEFAULT 'open',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id);
		CREATE TABLE IF NOT EXISTS issue_responses (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			issue_id    INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			author_id   INTEGER REFERENCES accounts(id) ON DELETE SET NULL,
			body        TEXT NOT NULL,
			is_solution INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_responses_issue ON issue_responses(issue_id);
		CREATE TABLE IF NOT EXISTS issue_votes (
			issue_id   INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
			voter_id   INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(issue_id, voter_id)
		);
		CREATE TABLE IF NOT EXISTS response_votes (
			response_id INTEGER NOT NULL REFERENCES issue_responses(id) ON DELETE CASCADE,
			voter_id    INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(response_id, voter_id)
		);
		CREATE TABLE IF NOT EXISTS ratings (
			rater_id   INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			rated_id   INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			stars      INTEGER NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(rater_id, rated_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating project tables: %w", err)
	}

	// GitHub issue links. One per issue; the remote number is written once
	// by a successful push and never changed after.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS issue_links (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			issue_id          INTEGER NOT NULL UNIQUE REFERENCES issues(id) ON DELETE CASCADE,
			repo_owner        TEXT NOT NULL,
			repo_name         TEXT NOT NULL,
			remote_number     INTEGER NOT NULL DEFAULT 0,
			remote_url        TEXT NOT NULL DEFAULT '',
			remote_state_hash TEXT NOT NULL DEFAULT '',
			state             TEXT NOT NULL,
			terminal          INTEGER NOT NULL DEFAULT 0,
			last_synced_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating issue_links table: %w", err)
	}

	// The ledger. account_id has NO foreign key: reputation rows outlive
	// the account row by design (audit). The partial-unique pair
	// (account_id, dedup_key) is the idempotency guard; SQLite treats
	// NULL dedup keys as distinct, which is exactly what local events need.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS reputation_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			delta      INTEGER NOT NULL,
			source     TEXT NOT NULL,
			dedup_key  TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(account_id, dedup_key)
		);
		CREATE INDEX IF NOT EXISTS idx_events_account ON reputation_events(account_id);
	`)
	if err != nil {
		return fmt.Errorf("creating reputation_events table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			kind       TEXT NOT NULL,
			body       TEXT NOT NULL,
			is_read    INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_account ON notifications(account_id);
	`)
	if err != nil {
		return fmt.Errorf("creating notifications table: %w", err)
	}

	return nil
}
