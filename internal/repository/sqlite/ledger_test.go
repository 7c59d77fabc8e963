package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/xdest/devboard/internal/model"
)

func appendTestEvent(t *testing.T, db *DB, accountID int64, kind model.EventKind, delta int, dedupKey string) bool {
	t.Helper()
	event := &model.ReputationEvent{
		AccountID: accountID,
		Kind:      kind,
		Delta:     delta,
		Source:    model.SourceLocal,
	}
	if dedupKey != "" {
		event.Source = model.SourceGitHub
		event.DedupKey = &dedupKey
	}
	applied, err := db.AppendEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}
	return applied
}

func TestAppendEvent_DedupKeyIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	account := createTestAccount(t, db, "dev", "dev@example.com", model.ProviderGitHub, "gh-1")

	if !appendTestEvent(t, db, account.ID, model.EventGitHubUpvote, 1, "reaction:555") {
		t.Fatal("first AppendEvent() with dedup key was not applied")
	}
	if appendTestEvent(t, db, account.ID, model.EventGitHubUpvote, 1, "reaction:555") {
		t.Fatal("second AppendEvent() with same dedup key was applied, want deduplicated")
	}

	score, err := db.AccountScore(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("AccountScore() error = %v", err)
	}
	if score != 1 {
		t.Errorf("AccountScore() = %d, want 1 (duplicate must not double-count)", score)
	}
}

func TestAppendEvent_SameKeyDifferentAccounts(t *testing.T) {
	db := newTestDB(t)
	a := createTestAccount(t, db, "dev_a", "a@example.com", model.ProviderGitHub, "gh-1")
	b := createTestAccount(t, db, "dev_b", "b@example.com", model.ProviderGitHub, "gh-2")

	// Dedup keys are scoped per account, not global.
	if !appendTestEvent(t, db, a.ID, model.EventGitHubUpvote, 1, "reaction:1") {
		t.Fatal("event for account a was deduplicated")
	}
	if !appendTestEvent(t, db, b.ID, model.EventGitHubUpvote, 1, "reaction:1") {
		t.Fatal("event for account b was deduplicated by account a's key")
	}
}

func TestAppendEvent_LocalEventsAlwaysApply(t *testing.T) {
	db := newTestDB(t)
	account := createTestAccount(t, db, "dev", "dev@example.com", model.ProviderGitHub, "gh-1")

	// Local events carry no dedup key and must never collide with each other.
	for i := 0; i < 3; i++ {
		if !appendTestEvent(t, db, account.ID, model.EventHelpfulVoteGiven, 1, "") {
			t.Fatalf("local event %d was deduplicated", i)
		}
	}

	score, _ := db.AccountScore(context.Background(), account.ID)
	if score != 3 {
		t.Errorf("AccountScore() = %d, want 3", score)
	}
}

func TestSumScores_OrdersByScoreDescending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	low := createTestAccount(t, db, "low", "low@example.com", model.ProviderGoogle, "g-1")
	high := createTestAccount(t, db, "high", "high@example.com", model.ProviderGoogle, "g-2")

	appendTestEvent(t, db, low.ID, model.EventHelpfulVoteGiven, 1, "")
	appendTestEvent(t, db, high.ID, model.EventSolutionMarked, 1, "")
	appendTestEvent(t, db, high.ID, model.EventHelpfulVoteGiven, 1, "")
	// A downvote: score is the signed sum, not an event count.
	appendTestEvent(t, db, low.ID, model.EventGitHubDownvote, -1, "reaction:9")

	entries, err := db.SumScores(ctx, 10)
	if err != nil {
		t.Fatalf("SumScores() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].AccountID != high.ID || entries[0].Score != 2 {
		t.Errorf("entries[0] = (%d, %d), want (%d, 2)", entries[0].AccountID, entries[0].Score, high.ID)
	}
	if entries[1].AccountID != low.ID || entries[1].Score != 0 {
		t.Errorf("entries[1] = (%d, %d), want (%d, 0)", entries[1].AccountID, entries[1].Score, low.ID)
	}
}

func TestSumScores_TieBreaksByEarliestAccount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	older := createTestAccount(t, db, "older", "older@example.com", model.ProviderGoogle, "g-1")
	// Force distinct creation instants. Bind a Go time.Time rather than
	// using SQL date arithmetic — datetime() cannot parse the driver's
	// stored timestamp format.
	younger := createTestAccount(t, db, "younger", "younger@example.com", model.ProviderGoogle, "g-2")
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET created_at = ? WHERE id = ?`,
		older.CreatedAt.Add(time.Hour), younger.ID,
	); err != nil {
		t.Fatalf("failed to adjust created_at: %v", err)
	}

	appendTestEvent(t, db, younger.ID, model.EventHelpfulVoteGiven, 1, "")
	appendTestEvent(t, db, older.ID, model.EventHelpfulVoteGiven, 1, "")

	entries, err := db.SumScores(ctx, 10)
	if err != nil {
		t.Fatalf("SumScores() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].AccountID != older.ID {
		t.Errorf("tie broken in favor of account %d, want older account %d", entries[0].AccountID, older.ID)
	}
}

func TestSumScores_Limit(t *testing.T) {
	db := newTestDB(t)

	for i, name := range []string{"one", "two", "three"} {
		a := createTestAccount(t, db, name, name+"@example.com", model.ProviderGoogle, name)
		for j := 0; j <= i; j++ {
			appendTestEvent(t, db, a.ID, model.EventHelpfulVoteGiven, 1, "")
		}
	}

	entries, err := db.SumScores(context.Background(), 2)
	if err != nil {
		t.Fatalf("SumScores() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
}

func TestListEvents(t *testing.T) {
	db := newTestDB(t)
	account := createTestAccount(t, db, "dev", "dev@example.com", model.ProviderGitHub, "gh-1")

	appendTestEvent(t, db, account.ID, model.EventSolutionMarked, 1, "")
	appendTestEvent(t, db, account.ID, model.EventGitHubUpvote, 1, "reaction:1")

	events, err := db.ListEvents(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	for _, e := range events {
		if e.AccountID != account.ID {
			t.Errorf("event %d belongs to account %d", e.ID, e.AccountID)
		}
	}
}
