package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"reportnotify/internal/types"
)

// tokenLockKey is the pg_advisory_xact_lock key that serializes token
// initialization and refresh across processes.
const tokenLockKey int64 = 0x7a616c6f // "zalo"

// TokenTx is the set of token operations available while the store lock is held.
type TokenTx interface {
	Load(ctx context.Context) (*types.OAuthToken, error)
	DeleteAll(ctx context.Context) error
	Insert(ctx context.Context, tok *types.OAuthToken) error
	Update(ctx context.Context, tok *types.OAuthToken) error
}

// TokenRepository provides data access for the oauth_tokens table. At most one
// live row is expected; Load returns the newest.
type TokenRepository struct {
	db DBTX
}

// NewTokenRepository creates a TokenRepository backed by db (pool or transaction).
func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

// Load returns the current token row, or (nil, nil) when none exists.
func (r *TokenRepository) Load(ctx context.Context) (*types.OAuthToken, error) {
	var (
		t            types.OAuthToken
		accessToken  string
		refreshToken string
		scope        *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, access_token, refresh_token, token_type, scope,
		        expires_at, created_at, updated_at
		 FROM oauth_tokens
		 ORDER BY id DESC
		 LIMIT 1`,
	).Scan(
		&t.ID,
		&accessToken,
		&refreshToken,
		&t.TokenType,
		&scope,
		&t.ExpiresAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load oauth token", err)
	}
	t.AccessToken = types.SecretString(accessToken)
	t.RefreshToken = types.SecretString(refreshToken)
	if scope != nil {
		t.Scope = *scope
	}
	return &t, nil
}

// DeleteAll removes every token row.
func (r *TokenRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM oauth_tokens`); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete oauth tokens", err)
	}
	return nil
}

// Insert creates a token row and sets tok.ID from the generated key.
func (r *TokenRepository) Insert(ctx context.Context, tok *types.OAuthToken) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO oauth_tokens (access_token, refresh_token, token_type, scope,
		                           expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		 RETURNING id`,
		tok.AccessToken.Unmask(),
		tok.RefreshToken.Unmask(),
		tok.TokenType,
		tok.Scope,
		tok.ExpiresAt,
		tok.CreatedAt,
		tok.UpdatedAt,
	).Scan(&tok.ID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert oauth token", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing token row in place.
func (r *TokenRepository) Update(ctx context.Context, tok *types.OAuthToken) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE oauth_tokens
		 SET access_token = $2, refresh_token = $3, token_type = $4,
		     scope = NULLIF($5, ''), expires_at = $6, updated_at = $7
		 WHERE id = $1`,
		tok.ID,
		tok.AccessToken.Unmask(),
		tok.RefreshToken.Unmask(),
		tok.TokenType,
		tok.Scope,
		tok.ExpiresAt,
		tok.UpdatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update oauth token", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundToken, "oauth token row disappeared during update", nil)
	}
	return nil
}

// TokenStore wraps TokenRepository with a cross-process lock. Reads go straight
// to the pool; WithLock runs fn inside a transaction holding an advisory lock,
// so concurrent refreshes in different processes serialize on the database.
type TokenStore struct {
	pool TxBeginner
	repo *TokenRepository
}

// NewTokenStore creates a TokenStore over pool.
func NewTokenStore(pool TxBeginner) *TokenStore {
	return &TokenStore{pool: pool, repo: NewTokenRepository(pool)}
}

// Load returns the current token row without locking.
func (s *TokenStore) Load(ctx context.Context) (*types.OAuthToken, error) {
	return s.repo.Load(ctx)
}

// WithLock runs fn with exclusive access to the token row. fn's writes commit
// only if it returns nil.
func (s *TokenStore) WithLock(ctx context.Context, fn func(tx TokenTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin token transaction", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, tokenLockKey); err != nil {
		_ = tx.Rollback(ctx)
		return types.NewAppError(types.ErrCodeInternalDB, "failed to acquire token lock", err)
	}

	if err := fn(NewTokenRepository(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit token transaction", err)
	}
	return nil
}
