package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"groupchat/internal/domain"
)

const inviteUniqueConstraint = "group_invites_group_user_key"

const inviteColumns = `id, group_id, user_id, inviter_id, status, created_at, updated_at, COALESCE(updated_by, '')`

// InviteRepository implements domain.InviteRepository for PostgreSQL
type InviteRepository struct {
	db DBTX
}

func NewInviteRepository(db DBTX) *InviteRepository {
	return &InviteRepository{db: db}
}

func (r *InviteRepository) Create(ctx context.Context, invite *domain.Invite) error {
	query := `
		INSERT INTO group_invites (group_id, user_id, inviter_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		invite.GroupID,
		invite.UserID,
		invite.InviterID,
		invite.Status,
	).Scan(&invite.ID, &invite.CreatedAt, &invite.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err, inviteUniqueConstraint) {
			return domain.NewError(domain.KindInviteExists, "invite for user %s already exists", invite.UserID)
		}
		return fmt.Errorf("failed to create invite: %w", err)
	}
	return nil
}

func (r *InviteRepository) GetByID(ctx context.Context, id string) (*domain.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM group_invites WHERE id = $1`
	return r.getInvite(ctx, query, id)
}

func (r *InviteRepository) LockByID(ctx context.Context, id string) (*domain.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM group_invites WHERE id = $1 FOR UPDATE`
	return r.getInvite(ctx, query, id)
}

// Find returns the invite row for a (group, user) pair regardless of status
func (r *InviteRepository) Find(ctx context.Context, groupID, userID string) (*domain.Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM group_invites WHERE group_id = $1 AND user_id = $2`
	return r.getInvite(ctx, query, groupID, userID)
}

func (r *InviteRepository) getInvite(ctx context.Context, query string, args ...any) (*domain.Invite, error) {
	invite := &domain.Invite{}
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&invite.ID,
		&invite.GroupID,
		&invite.UserID,
		&invite.InviterID,
		&invite.Status,
		&invite.CreatedAt,
		&invite.UpdatedAt,
		&invite.UpdatedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "invite not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite: %w", err)
	}
	return invite, nil
}

func (r *InviteRepository) UpdateStatus(ctx context.Context, id string, status domain.InviteStatus, by string, at time.Time) error {
	query := `
		UPDATE group_invites
		SET status = $2, updated_by = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, status, by, at)
	if err != nil {
		return fmt.Errorf("failed to update invite: %w", err)
	}
	return expectAffected(res, "invite", id)
}

func (r *InviteRepository) ListByGroup(ctx context.Context, groupID string, status domain.InviteStatus) ([]*domain.Invite, error) {
	query := `
		SELECT ` + inviteColumns + `
		FROM group_invites
		WHERE group_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
	`
	return r.listInvites(ctx, query, groupID, string(status))
}

func (r *InviteRepository) ListPendingForUser(ctx context.Context, userID string) ([]*domain.Invite, error) {
	query := `
		SELECT ` + inviteColumns + `
		FROM group_invites
		WHERE user_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`
	return r.listInvites(ctx, query, userID)
}

func (r *InviteRepository) listInvites(ctx context.Context, query string, args ...any) ([]*domain.Invite, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invites: %w", err)
	}
	defer rows.Close()

	invites := make([]*domain.Invite, 0)
	for rows.Next() {
		invite := &domain.Invite{}
		if err := rows.Scan(
			&invite.ID,
			&invite.GroupID,
			&invite.UserID,
			&invite.InviterID,
			&invite.Status,
			&invite.CreatedAt,
			&invite.UpdatedAt,
			&invite.UpdatedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, invite)
	}
	return invites, rows.Err()
}

func (r *InviteRepository) DeleteByGroup(ctx context.Context, groupID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM group_invites WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to delete invites: %w", err)
	}
	return nil
}
