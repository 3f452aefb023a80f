package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"reportnotify/internal/types"
)

// UserRepository reads recipients and persists their resolved messaging id.
// Every other user column belongs to the user-management service.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository backed by db.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `u.id, u.email, u.full_name, u.phone, u.zalo_user_id, u.is_active`

func scanUser(row pgx.Row) (*types.User, error) {
	var (
		u            types.User
		phone, extID *string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &phone, &extID, &u.IsActive); err != nil {
		return nil, err
	}
	if phone != nil {
		u.Phone = *phone
	}
	if extID != nil {
		u.ExternalMessagingID = *extID
	}
	return &u, nil
}

// GetByID returns the user or a not_found_user error.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*types.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, fmt.Sprintf("user %d not found", id), nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get user", err)
	}
	return u, nil
}

// SetExternalMessagingID writes the chat-platform id resolved for the user.
func (r *UserRepository) SetExternalMessagingID(ctx context.Context, id int64, externalID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET zalo_user_id = $2, updated_at = NOW() WHERE id = $1`,
		id,
		externalID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set external messaging id", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, fmt.Sprintf("user %d not found", id), nil)
	}
	return nil
}
