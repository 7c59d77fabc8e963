package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xdest/devboard/internal/apperror"
	"github.com/xdest/devboard/internal/model"
	"github.com/xdest/devboard/internal/repository"
)

// leaderboardTTL bounds how stale a cached leaderboard may get when no
// events arrive (events from other replicas would be invisible to the
// in-process invalidation).
const leaderboardTTL = 30 * time.Second

const defaultLeaderboardLimit = 20

// LedgerService fronts the append-only reputation ledger. All point changes
// in the system funnel through Record; the leaderboard is a derived read
// computed by summation and cached briefly.
type LedgerService struct {
	ledger repository.LedgerRepository
	logger *slog.Logger

	mu          sync.Mutex
	cached      []model.LeaderboardEntry
	cachedLimit int
	cachedAt    time.Time
}

func NewLedgerService(ledger repository.LedgerRepository, logger *slog.Logger) *LedgerService {
	return &LedgerService{ledger: ledger, logger: logger}
}

// Record appends one reputation event. The delta is derived from the kind —
// every kind is worth exactly ±1 — so callers cannot invent point values.
//
// For externally sourced events dedupKey makes the append idempotent:
// applying the same observation twice reports applied=false and changes
// nothing. Local events pass an empty dedupKey and always apply.
func (s *LedgerService) Record(ctx context.Context, accountID int64, kind model.EventKind, source model.EventSource, dedupKey string) (bool, error) {
	delta, ok := model.EventDelta(kind)
	if !ok {
		return false, apperror.ValidationFailed("kind", fmt.Sprintf("unknown event kind %q", kind))
	}

	event := &model.ReputationEvent{
		AccountID: accountID,
		Kind:      kind,
		Delta:     delta,
		Source:    source,
	}
	if dedupKey != "" {
		event.DedupKey = &dedupKey
	}

	applied, err := s.ledger.AppendEvent(ctx, event)
	if err != nil {
		return false, fmt.Errorf("service/ledger: appending %s for account %d: %w", kind, accountID, err)
	}
	if !applied {
		// Defined no-op, not an error. Common during reconcile polls.
		s.logger.Debug("duplicate ledger event skipped",
			slog.Int64("accountID", accountID),
			slog.String("dedupKey", dedupKey),
		)
		return false, nil
	}

	s.invalidate()
	s.logger.Info("reputation event recorded",
		slog.Int64("accountID", accountID),
		slog.String("kind", string(kind)),
		slog.Int("delta", delta),
		slog.String("source", string(source)),
	)
	return true, nil
}

// Leaderboard returns the top accounts by summed score, descending, ties
// broken by earliest account creation. Serves from cache when a recent
// computation exists and no event has landed since.
func (s *LedgerService) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}

	// A cache computed for a larger limit can serve any smaller one: the
	// board may simply hold fewer rows than asked for.
	s.mu.Lock()
	if s.cached != nil && time.Since(s.cachedAt) < leaderboardTTL && s.cachedLimit >= limit {
		n := min(limit, len(s.cached))
		out := make([]model.LeaderboardEntry, n)
		copy(out, s.cached[:n])
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	entries, err := s.ledger.SumScores(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service/ledger: computing leaderboard: %w", err)
	}

	s.mu.Lock()
	s.cached = entries
	s.cachedLimit = limit
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return entries, nil
}

// Score sums one account's deltas. Works for erased accounts — the ledger
// outlives the account row.
func (s *LedgerService) Score(ctx context.Context, accountID int64) (int, error) {
	score, err := s.ledger.AccountScore(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("service/ledger: scoring account %d: %w", accountID, err)
	}
	return score, nil
}

// History returns an account's events, newest first.
func (s *LedgerService) History(ctx context.Context, accountID int64) ([]model.ReputationEvent, error) {
	events, err := s.ledger.ListEvents(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("service/ledger: listing events for account %d: %w", accountID, err)
	}
	return events, nil
}

func (s *LedgerService) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
