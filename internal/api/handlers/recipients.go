package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reportnotify/internal/core"
	"reportnotify/internal/types"
)

// RecipientEnricher resolves and stores a user's chat-platform id.
type RecipientEnricher interface {
	Enrich(ctx context.Context, userID int64) (*types.User, error)
}

// RecipientDTO is the operator view of an enriched user.
type RecipientDTO struct {
	ID                  int64  `json:"id"`
	FullName            string `json:"full_name"`
	ExternalMessagingID string `json:"external_messaging_id"`
	IsActive            bool   `json:"is_active"`
}

// RecipientHandler exposes explicit recipient enrichment.
type RecipientHandler struct {
	enricher RecipientEnricher
	logger   *slog.Logger
}

// NewRecipientHandler creates a RecipientHandler.
func NewRecipientHandler(e RecipientEnricher, l *slog.Logger) *RecipientHandler {
	if l == nil {
		l = slog.Default()
	}
	return &RecipientHandler{enricher: e, logger: l}
}

// RegisterRoutes mounts the enrichment route.
func (h *RecipientHandler) RegisterRoutes(r chi.Router) {
	r.Post("/users/{id}/external-id", h.Enrich)
}

// Enrich handles POST /v1/users/{id}/external-id. A user without a phone gets
// 400, a phone with no platform account 404.
func (h *RecipientHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	u, err := h.enricher.Enrich(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "recipient enriched", "user_id", u.ID)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: RecipientDTO{
		ID:                  u.ID,
		FullName:            u.FullName,
		ExternalMessagingID: u.ExternalMessagingID,
		IsActive:            u.IsActive,
	}})
}
