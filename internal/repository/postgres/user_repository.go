package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"groupchat/internal/domain"
)

// UserDirectory reads display info from the users table, which is
// populated by the identity service.
type UserDirectory struct {
	db DBTX
}

// NewUserDirectory creates a new PostgreSQL user directory
func NewUserDirectory(db DBTX) *UserDirectory {
	return &UserDirectory{db: db}
}

// GetDisplayInfo retrieves display fields for a user
func (r *UserDirectory) GetDisplayInfo(ctx context.Context, userID string) (*domain.UserInfo, error) {
	query := `
		SELECT id, display_name, email
		FROM users
		WHERE id = $1
	`
	info := &domain.UserInfo{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&info.ID, &info.Name, &info.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "user %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return info, nil
}
