// Package notifications turns a report request into per-recipient chat
// messages: it resolves each recipient's platform identifier, renders the
// deadline reminder, sends it and records the outcome.
package notifications

import (
	"context"
	"log/slog"

	"reportnotify/internal/external"
	"reportnotify/internal/types"
)

// TokenProvider supplies a valid access token and its signing proof.
type TokenProvider interface {
	GetValidAccessToken(ctx context.Context) (string, error)
	ComputeSigningProof(accessToken string) string
}

// ProfileLookup finds the platform user registered under a phone number.
type ProfileLookup interface {
	GetProfile(ctx context.Context, accessToken, proof, phone string) (*external.ZaloProfile, error)
}

// UserStore reads users and caches their resolved platform identifier.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*types.User, error)
	SetExternalMessagingID(ctx context.Context, id int64, externalID string) error
}

// RecipientResolver maps a user to the identifier messages are addressed to.
type RecipientResolver struct {
	tokens   TokenProvider
	profiles ProfileLookup
	users    UserStore
	logger   *slog.Logger
}

// NewRecipientResolver creates a RecipientResolver.
func NewRecipientResolver(tokens TokenProvider, profiles ProfileLookup, users UserStore, logger *slog.Logger) *RecipientResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecipientResolver{tokens: tokens, profiles: profiles, users: users, logger: logger}
}

// ResolveIdentifier returns the user's platform identifier. A cached value
// wins; otherwise the phone number is looked up and the result is written
// back on a best-effort basis. ok is false when no identifier could be found,
// for whatever reason; the caller skips the recipient.
func (r *RecipientResolver) ResolveIdentifier(ctx context.Context, user *types.User) (string, bool) {
	if user.ExternalMessagingID != "" {
		return user.ExternalMessagingID, true
	}
	if user.Phone == "" {
		r.logger.DebugContext(ctx, "recipient has neither identifier nor phone", "user_id", user.ID)
		return "", false
	}

	id, err := r.lookup(ctx, user.Phone)
	if err != nil {
		r.logger.WarnContext(ctx, "recipient phone lookup failed",
			"user_id", user.ID,
			"error", err,
		)
		return "", false
	}
	if id == "" {
		r.logger.WarnContext(ctx, "no platform account registered for phone", "user_id", user.ID)
		return "", false
	}

	if err := r.users.SetExternalMessagingID(ctx, user.ID, id); err != nil {
		r.logger.WarnContext(ctx, "failed to cache recipient identifier",
			"user_id", user.ID,
			"error", err,
		)
	}
	user.ExternalMessagingID = id
	return id, true
}

// Enrich resolves and stores the platform identifier for userID ahead of any
// dispatch. Unlike ResolveIdentifier it reports why resolution failed.
func (r *RecipientResolver) Enrich(ctx context.Context, userID int64) (*types.User, error) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ExternalMessagingID != "" {
		return user, nil
	}
	if user.Phone == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"user has no phone number to look up", nil, map[string]any{"field": "phone"})
	}

	id, err := r.lookup(ctx, user.Phone)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundUser,
			"no platform account is registered for the user's phone number", nil,
			map[string]any{"user_id": userID})
	}

	if err := r.users.SetExternalMessagingID(ctx, user.ID, id); err != nil {
		return nil, err
	}
	user.ExternalMessagingID = id

	r.logger.InfoContext(ctx, "recipient identifier stored", "user_id", user.ID)
	return user, nil
}

func (r *RecipientResolver) lookup(ctx context.Context, phone string) (string, error) {
	accessToken, err := r.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return "", err
	}
	profile, err := r.profiles.GetProfile(ctx, accessToken, r.tokens.ComputeSigningProof(accessToken), phone)
	if err != nil {
		return "", err
	}
	return profile.UserID, nil
}
