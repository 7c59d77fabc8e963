package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
)

var _ repository.LedgerRepository = (*DB)(nil)

// AppendEvent appends one ledger row, or reports applied=false when the
// event's (account_id, dedup_key) pair was already applied.
//
// ON CONFLICT DO NOTHING makes the dedup check and the insert a single
// atomic statement — there is no window for two concurrent deliveries of
// the same external reaction to both apply. RowsAffected tells the caller
// which side of the race it was on.
func (db *DB) AppendEvent(ctx context.Context, event *model.ReputationEvent) (bool, error) {
	event.CreatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO reputation_events (account_id, kind, delta, source, dedup_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account_id, dedup_key) DO NOTHING`,
		event.AccountID,
		event.Kind,
		event.Delta,
		event.Source,
		event.DedupKey,
		event.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: appending reputation event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return false, nil // deduplicated
	}

	event.ID, _ = res.LastInsertId()
	return true, nil
}

// SumScores computes the leaderboard by replaying the event log: sum of
// deltas per account, descending, ties broken by earliest account creation.
// Erased accounts drop out of the join (no profile to link), but their
// events remain and are still reachable via AccountScore.
func (db *DB) SumScores(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT a.id, a.username, a.role, COALESCE(SUM(e.delta), 0) AS score, a.created_at
		 FROM accounts a
		 JOIN reputation_events e ON e.account_id = a.id
		 GROUP BY a.id
		 ORDER BY score DESC, a.created_at ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: computing leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.AccountID, &e.Username, &e.Role, &e.Score, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AccountScore sums one account's deltas. Works for erased accounts too —
// the ledger is queryable for audit after the account row is gone.
func (db *DB) AccountScore(ctx context.Context, accountID int64) (int, error) {
	var score int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM reputation_events WHERE account_id = ?`,
		accountID,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("sqlite: summing score for account %d: %w", accountID, err)
	}
	return score, nil
}

// ListEvents returns an account's ledger rows oldest-first.
func (db *DB) ListEvents(ctx context.Context, accountID int64) ([]model.ReputationEvent, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, account_id, kind, delta, source, dedup_key, created_at
		 FROM reputation_events WHERE account_id = ? ORDER BY id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var events []model.ReputationEvent
	for rows.Next() {
		var e model.ReputationEvent
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Delta, &e.Source, &e.DedupKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
