// Package oauth owns the single chat-platform credential. Every read and write
// of the token row goes through TokenManager; no other component touches it.
package oauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reportnotify/internal/db"
	"reportnotify/internal/types"
)

// DefaultRefreshBuffer is how close to expiry a token may get before it is
// refreshed ahead of use.
const DefaultRefreshBuffer = 60 * time.Second

// TokenStore persists the token row. WithLock must give fn exclusive access
// across processes and discard fn's writes when it returns an error.
type TokenStore interface {
	Load(ctx context.Context) (*types.OAuthToken, error)
	WithLock(ctx context.Context, fn func(tx db.TokenTx) error) error
}

// TokenRefresher exchanges a refresh token at the platform token endpoint.
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*types.TokenGrant, error)
}

// RefreshRecorder receives the outcome of every upstream refresh attempt.
type RefreshRecorder interface {
	RecordTokenRefresh(ctx context.Context, err error)
}

// Config holds the platform credentials and refresh tuning.
type Config struct {
	AppID         string
	AppSecret     types.SecretString
	RefreshBuffer time.Duration
}

// TokenManager hands out valid access tokens and refreshes them on demand.
//
// Refresh is serialized twice: mu keeps goroutines in this process from
// queuing redundant upstream calls, and TokenStore.WithLock keeps other
// processes out. Both paths re-check expiry after acquiring the lock, so a
// burst of callers produces exactly one refresh.
type TokenManager struct {
	mu        sync.Mutex
	store     TokenStore
	refresher TokenRefresher
	recorder  RefreshRecorder
	cfg       Config
	clock     types.Clock
	logger    *slog.Logger
}

// Option configures a TokenManager.
type Option func(*TokenManager)

// WithClock overrides the time source.
func WithClock(c types.Clock) Option {
	return func(m *TokenManager) { m.clock = c }
}

// WithRecorder attaches a refresh metrics recorder.
func WithRecorder(r RefreshRecorder) Option {
	return func(m *TokenManager) { m.recorder = r }
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(store TokenStore, refresher TokenRefresher, cfg Config, logger *slog.Logger, opts ...Option) *TokenManager {
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = DefaultRefreshBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &TokenManager{
		store:     store,
		refresher: refresher,
		cfg:       cfg,
		clock:     types.RealClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *TokenManager) checkConfigured() error {
	if m.cfg.AppID == "" || m.cfg.AppSecret.IsEmpty() {
		return types.NewAppError(types.ErrCodeUnavailableConfig, "zalo app id and app secret must be configured", nil)
	}
	return nil
}

func errUninitialized() error {
	return types.NewAppError(types.ErrCodeUnavailableTokenUninitialized,
		"oauth token has not been initialized; an operator must supply a refresh token", nil)
}

// GetValidAccessToken returns an access token that stays valid for at least
// the refresh buffer, refreshing it first when needed.
func (m *TokenManager) GetValidAccessToken(ctx context.Context) (string, error) {
	if err := m.checkConfigured(); err != nil {
		return "", err
	}

	tok, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if tok == nil {
		return "", errUninitialized()
	}
	if !tok.ExpiresWithin(m.clock.Now(), m.cfg.RefreshBuffer) {
		return tok.AccessToken.Unmask(), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var access string
	err = m.store.WithLock(ctx, func(tx db.TokenTx) error {
		current, err := tx.Load(ctx)
		if err != nil {
			return err
		}
		if current == nil {
			return errUninitialized()
		}
		// Another caller may have refreshed while we waited for the lock.
		if !current.ExpiresWithin(m.clock.Now(), m.cfg.RefreshBuffer) {
			access = current.AccessToken.Unmask()
			return nil
		}
		if err := m.refreshLocked(ctx, tx, current); err != nil {
			return err
		}
		access = current.AccessToken.Unmask()
		return nil
	})
	if err != nil {
		return "", err
	}
	return access, nil
}

// Refresh unconditionally exchanges the stored refresh token and returns the
// updated row.
func (m *TokenManager) Refresh(ctx context.Context) (*types.OAuthToken, error) {
	if err := m.checkConfigured(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var refreshed *types.OAuthToken
	err := m.store.WithLock(ctx, func(tx db.TokenTx) error {
		current, err := tx.Load(ctx)
		if err != nil {
			return err
		}
		if current == nil {
			return errUninitialized()
		}
		if err := m.refreshLocked(ctx, tx, current); err != nil {
			return err
		}
		refreshed = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

// Initialize replaces any stored token with one built from refreshToken and
// fetches the first access token before returning. The replacement is atomic:
// if the exchange fails, the previous row is left untouched.
func (m *TokenManager) Initialize(ctx context.Context, refreshToken string) (*types.OAuthToken, error) {
	if refreshToken == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField, "refresh_token is required", nil,
			map[string]any{"field": "refresh_token"})
	}
	if err := m.checkConfigured(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var created *types.OAuthToken
	err := m.store.WithLock(ctx, func(tx db.TokenTx) error {
		if err := tx.DeleteAll(ctx); err != nil {
			return err
		}

		now := m.clock.Now()
		tok := &types.OAuthToken{
			RefreshToken: types.SecretString(refreshToken),
			TokenType:    "Bearer",
			ExpiresAt:    now.Add(-time.Second),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Insert(ctx, tok); err != nil {
			return err
		}
		if err := m.refreshLocked(ctx, tx, tok); err != nil {
			return err
		}
		created = tok
		return nil
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "oauth token initialization failed", "error", err)
		return nil, err
	}

	m.logger.InfoContext(ctx, "oauth token initialized",
		"token_id", created.ID,
		"expires_at", created.ExpiresAt,
	)
	return created, nil
}

// refreshLocked performs the upstream exchange and writes the result through
// tx. The caller must hold both mu and the store lock. tok is updated in place.
func (m *TokenManager) refreshLocked(ctx context.Context, tx db.TokenTx, tok *types.OAuthToken) error {
	grant, err := m.refresher.RefreshAccessToken(ctx, tok.RefreshToken.Unmask())
	m.record(ctx, err)
	if err != nil {
		attrs := []any{"token_id", tok.ID, "error", err}
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			if status, ok := appErr.Details["upstream_status"]; ok {
				attrs = append(attrs, "upstream_status", status)
			}
		}
		m.logger.ErrorContext(ctx, "oauth token refresh failed", attrs...)
		return err
	}

	now := m.clock.Now()
	tok.AccessToken = types.SecretString(grant.AccessToken)
	if grant.RefreshToken != "" {
		tok.RefreshToken = types.SecretString(grant.RefreshToken)
	}
	if grant.TokenType != "" {
		tok.TokenType = grant.TokenType
	}
	if grant.Scope != "" {
		tok.Scope = grant.Scope
	}
	tok.ExpiresAt = now.Add(grant.ExpiresIn)
	tok.UpdatedAt = now

	if err := tx.Update(ctx, tok); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "oauth token refreshed",
		"token_id", tok.ID,
		"expires_at", tok.ExpiresAt,
		"rotated_refresh_token", grant.RefreshToken != "",
	)
	return nil
}

func (m *TokenManager) record(ctx context.Context, err error) {
	if m.recorder != nil {
		m.recorder.RecordTokenRefresh(ctx, err)
	}
}

// ComputeSigningProof returns the lowercase hex HMAC-SHA256 of accessToken
// keyed by the app secret, or "" when either is missing. Callers send the
// request unsigned in that case.
func (m *TokenManager) ComputeSigningProof(accessToken string) string {
	if accessToken == "" || m.cfg.AppSecret.IsEmpty() {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(m.cfg.AppSecret.Unmask()))
	mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}

// TokenInfo returns the operator view of the stored token, or nil when the
// token has not been initialized.
func (m *TokenManager) TokenInfo(ctx context.Context) (*types.TokenInfo, error) {
	tok, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	return types.NewTokenInfo(tok, m.clock.Now()), nil
}

// IsInitialized reports whether a token row exists.
func (m *TokenManager) IsInitialized(ctx context.Context) (bool, error) {
	tok, err := m.store.Load(ctx)
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}
