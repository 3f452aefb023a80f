package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reportnotify/internal/types"
)

func TestUserRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	phone := "0901234567"
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{int64(7)}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 7
			*dest[1].(*string) = "an@example.com"
			*dest[2].(*string) = "Nguyen An"
			*dest[3].(**string) = &phone
			*dest[4].(**string) = nil
			*dest[5].(*bool) = true
			return nil
		}})

	u, err := NewUserRepository(db).GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "0901234567", u.Phone)
	assert.Empty(t, u.ExternalMessagingID)
	assert.True(t, u.IsActive)
}

func TestUserRepository_GetByID_Errors(t *testing.T) {
	tests := []struct {
		name    string
		scanErr error
		want    types.ErrorCode
	}{
		{"not found", pgx.ErrNoRows, types.ErrCodeNotFoundUser},
		{"db error", errors.New("connection refused"), types.ErrCodeInternalDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
				Return(&mockRow{scanErr: tt.scanErr})

			_, err := NewUserRepository(db).GetByID(context.Background(), 7)
			assert.True(t, types.IsCode(err, tt.want))
		})
	}
}

func TestUserRepository_SetExternalMessagingID(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{int64(7), "zalo-uid-1"}).
			Return(pgconn.NewCommandTag("UPDATE 1"), nil)

		require.NoError(t, NewUserRepository(db).SetExternalMessagingID(context.Background(), 7, "zalo-uid-1"))
		db.AssertExpectations(t)
	})

	t.Run("unknown user", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.NewCommandTag("UPDATE 0"), nil)

		err := NewUserRepository(db).SetExternalMessagingID(context.Background(), 7, "zalo-uid-1")
		assert.True(t, types.IsCode(err, types.ErrCodeNotFoundUser))
	})

	t.Run("db error", func(t *testing.T) {
		db := new(mockDBTX)
		db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(pgconn.CommandTag{}, errors.New("deadlock detected"))

		err := NewUserRepository(db).SetExternalMessagingID(context.Background(), 7, "zalo-uid-1")
		assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
	})
}
