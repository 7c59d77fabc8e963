package handler

import (
	"log/slog"
	"net/http"

	"github.com/xdest/devboard/internal/auth"
	"github.com/xdest/devboard/internal/repository"
)

// NotificationHandler serves the per-account sync notices.
type NotificationHandler struct {
	notifications repository.NotificationRepository
	logger        *slog.Logger
}

func NewNotificationHandler(notifications repository.NotificationRepository, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// HandleList returns the caller's notifications, unread first.
//
// HTTP: GET /api/notifications
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	list, err := h.notifications.ListNotifications(r.Context(), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleMarkRead marks one of the caller's notifications as read.
//
// HTTP: POST /api/notifications/{id}/read
func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "id is required",
		})
		return
	}
	if err := h.notifications.MarkNotificationRead(r.Context(), id, accountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
