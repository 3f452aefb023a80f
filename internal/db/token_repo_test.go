package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reportnotify/internal/types"
)

func TestTokenRepository_Load_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTokenRepository(db)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	scope := "oa.message"
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 3
			*dest[1].(*string) = "access-abc"
			*dest[2].(*string) = "refresh-xyz"
			*dest[3].(*string) = "Bearer"
			*dest[4].(**string) = &scope
			*dest[5].(*time.Time) = now.Add(time.Hour)
			*dest[6].(*time.Time) = now
			*dest[7].(*time.Time) = now
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	tok, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tok)

	assert.Equal(t, int64(3), tok.ID)
	assert.Equal(t, "access-abc", tok.AccessToken.Unmask())
	assert.Equal(t, "refresh-xyz", tok.RefreshToken.Unmask())
	assert.Equal(t, "oa.message", tok.Scope)
	assert.Equal(t, now.Add(time.Hour), tok.ExpiresAt)
	db.AssertExpectations(t)
}

func TestTokenRepository_Load_NoRow(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTokenRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	tok, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestTokenRepository_Load_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTokenRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection reset")})

	_, err := repo.Load(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestTokenRepository_Insert_SetsID(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTokenRepository(db)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tok := &types.OAuthToken{
		AccessToken:  "",
		RefreshToken: "refresh-xyz",
		TokenType:    "Bearer",
		ExpiresAt:    now.Add(-time.Second),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
		// Raw secret values go to the driver, not the redacted form.
		return len(args) == 7 && args[1] == "refresh-xyz"
	})).Return(&mockRow{scanFn: func(dest ...any) error {
		*dest[0].(*int64) = 11
		return nil
	}})

	require.NoError(t, repo.Insert(context.Background(), tok))
	assert.Equal(t, int64(11), tok.ID)
	db.AssertExpectations(t)
}

func TestTokenRepository_Update(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tok := &types.OAuthToken{ID: 11, AccessToken: "a2", RefreshToken: "r2", ExpiresAt: now.Add(time.Hour), UpdatedAt: now}

	t.Run("success", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(args []any) bool {
			return args[0] == int64(11) && args[1] == "a2" && args[2] == "r2"
		})).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

		require.NoError(t, NewTokenRepository(db).Update(context.Background(), tok))
		db.AssertExpectations(t)
	})

	t.Run("row vanished", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 0"), nil)

		err := NewTokenRepository(db).Update(context.Background(), tok)
		assert.True(t, types.IsCode(err, types.ErrCodeNotFoundToken))
	})
}

func TestTokenRepository_DeleteAll_DBError(t *testing.T) {
	db := new(mockDBTX)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("permission denied"))

	err := NewTokenRepository(db).DeleteAll(context.Background())
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}

func TestTokenStore_WithLock_Commits(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectBegin()
	pool.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(tokenLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	pool.ExpectExec(`DELETE FROM oauth_tokens`).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	pool.ExpectCommit()

	store := NewTokenStore(pool)
	err = store.WithLock(context.Background(), func(tx TokenTx) error {
		return tx.DeleteAll(context.Background())
	})
	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestTokenStore_WithLock_RollsBackOnError(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectBegin()
	pool.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(tokenLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	pool.ExpectRollback()

	fnErr := types.NewAppError(types.ErrCodeUpstreamTokenRefresh, "refresh rejected", nil)
	store := NewTokenStore(pool)
	err = store.WithLock(context.Background(), func(tx TokenTx) error {
		return fnErr
	})
	require.ErrorIs(t, err, fnErr)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestTokenStore_WithLock_BeginFails(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	pool.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err = NewTokenStore(pool).WithLock(context.Background(), func(tx TokenTx) error {
		called = true
		return nil
	})
	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
	assert.False(t, called)
}
