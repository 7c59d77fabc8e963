package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xdest/devboard/internal/service"
)

// LeaderboardHandler exposes the reputation read side.
type LeaderboardHandler struct {
	ledger *service.LedgerService
	logger *slog.Logger
}

func NewLeaderboardHandler(ledger *service.LedgerService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{ledger: ledger, logger: logger}
}

// HandleLeaderboard returns the top accounts by score.
//
// HTTP: GET /api/leaderboard?limit=20
func (h *LeaderboardHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleScore returns one account's summed score.
//
// HTTP: GET /api/accounts/{id}/score
func (h *LeaderboardHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}
	score, err := h.ledger.Score(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"score": score})
}

// HandleHistory returns one account's reputation events, newest first.
//
// HTTP: GET /api/accounts/{id}/events
func (h *LeaderboardHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := pathID(w, r, "id")
	if id == 0 {
		return
	}
	events, err := h.ledger.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
