// Package handlers contains the HTTP handlers for the notifier's admin API:
// OAuth token administration, manual deadline notifications and recipient
// enrichment. All routes are mounted under /v1 behind admin-key auth.
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

// TokenService is the OAuth token manager as seen by operators.
type TokenService interface {
	Initialize(ctx context.Context, refreshToken string) (*types.OAuthToken, error)
	Refresh(ctx context.Context) (*types.OAuthToken, error)
	GetValidAccessToken(ctx context.Context) (string, error)
	TokenInfo(ctx context.Context) (*types.TokenInfo, error)
	IsInitialized(ctx context.Context) (bool, error)
}

// InitTokenRequest is the body of POST /v1/admin/oauth/init.
type InitTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenStatusResponse is the body of GET /v1/admin/oauth/status.
type TokenStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// TokenHandler exposes token initialization and inspection. Responses carry
// types.TokenInfo and never the raw tokens.
type TokenHandler struct {
	tokens    TokenService
	validator *core.Validator
	clock     types.Clock
	logger    *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(tokens TokenService, v *core.Validator, clock types.Clock, l *slog.Logger) *TokenHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if l == nil {
		l = slog.Default()
	}
	return &TokenHandler{tokens: tokens, validator: v, clock: clock, logger: l}
}

// RegisterRoutes mounts the token routes under /admin/oauth.
func (h *TokenHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/oauth", func(r chi.Router) {
		r.Post("/init", h.Init)
		r.Get("/info", h.Info)
		r.Get("/status", h.Status)
		r.Post("/refresh", h.Refresh)
	})
}

// Init handles POST /v1/admin/oauth/init. It replaces any stored token with
// one obtained from the supplied refresh token.
func (h *TokenHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req InitTokenRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tok, err := h.tokens.Initialize(r.Context(), req.RefreshToken)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "oauth token initialization failed", "error", err)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "oauth token initialized", "token_id", tok.ID, "expires_at", tok.ExpiresAt)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: types.NewTokenInfo(tok, h.clock.Now())})
}

// Info handles GET /v1/admin/oauth/info. Data is null when no token exists.
func (h *TokenHandler) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.tokens.TokenInfo(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: info})
}

// Status handles GET /v1/admin/oauth/status.
func (h *TokenHandler) Status(w http.ResponseWriter, r *http.Request) {
	ok, err := h.tokens.IsInitialized(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: TokenStatusResponse{Initialized: ok}})
}

// Refresh handles POST /v1/admin/oauth/refresh. Without force=true it only
// refreshes a token that is inside the refresh buffer.
func (h *TokenHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidBody,
				"force must be a boolean",
				nil,
				map[string]any{"force": raw},
			))
			return
		}
		force = v
	}

	if force {
		tok, err := h.tokens.Refresh(r.Context())
		if err != nil {
			core.Error(w, r, err)
			return
		}
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: types.NewTokenInfo(tok, h.clock.Now())})
		return
	}

	if _, err := h.tokens.GetValidAccessToken(r.Context()); err != nil {
		core.Error(w, r, err)
		return
	}
	h.Info(w, r)
}
