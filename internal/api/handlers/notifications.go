package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"reportnotify/internal/core"
	"reportnotify/internal/types"
)

// ManualNotifier sends a deadline reminder on operator request.
type ManualNotifier interface {
	SendNotificationManually(ctx context.Context, id int64) (int, error)
}

// SendNotificationResponse is the body returned by a manual send.
type SendNotificationResponse struct {
	SentCount int `json:"sent_count"`
}

// NotificationHandler triggers deadline reminders by hand.
type NotificationHandler struct {
	notifier ManualNotifier
	logger   *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(n ManualNotifier, l *slog.Logger) *NotificationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &NotificationHandler{notifier: n, logger: l}
}

// RegisterRoutes mounts the manual send route.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/report-requests/{id}/deadline-notifications", h.Send)
}

// Send handles POST /v1/report-requests/{id}/deadline-notifications. The
// request must still be active with its deadline ahead (409 otherwise).
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	sent, err := h.notifier.SendNotificationManually(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "manual deadline notification failed",
			"report_request_id", id,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "manual deadline notification sent",
		"report_request_id", id,
		"sent_count", sent,
	)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: SendNotificationResponse{SentCount: sent}})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidID,
			"id must be a positive integer",
			nil,
			map[string]any{"id": raw},
		)
	}
	return id, nil
}
