package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"groupchat/internal/domain"
)

const (
	groupNameConstraint   = "groups_name_live_idx"
	groupMemberConstraint = "group_members_pkey"
)

// GroupRepository implements domain.GroupRepository for PostgreSQL
type GroupRepository struct {
	db DBTX
}

// NewGroupRepository creates a new PostgreSQL group repository
func NewGroupRepository(db DBTX) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts a new group into the database
func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) error {
	query := `
		INSERT INTO groups (name, type, max_members, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		group.Name,
		group.Type,
		group.Capacity,
		group.OwnerID,
	).Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err, groupNameConstraint) {
			return domain.NewError(domain.KindDuplicateName, "group name %q already taken", group.Name)
		}
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// GetByID retrieves a live group by ID
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*domain.Group, error) {
	query := `
		SELECT id, name, type, max_members, owner_id, created_at
		FROM groups
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.getGroup(ctx, query, id)
}

// LockByID retrieves a live group and locks its row until the transaction ends
func (r *GroupRepository) LockByID(ctx context.Context, id string) (*domain.Group, error) {
	query := `
		SELECT id, name, type, max_members, owner_id, created_at
		FROM groups
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`
	return r.getGroup(ctx, query, id)
}

func (r *GroupRepository) getGroup(ctx context.Context, query, id string) (*domain.Group, error) {
	group := &domain.Group{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&group.ID,
		&group.Name,
		&group.Type,
		&group.Capacity,
		&group.OwnerID,
		&group.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "group %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// Update writes the mutable group fields
func (r *GroupRepository) Update(ctx context.Context, group *domain.Group) error {
	query := `
		UPDATE groups
		SET name = $2, type = $3, max_members = $4, owner_id = $5
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query,
		group.ID,
		group.Name,
		group.Type,
		group.Capacity,
		group.OwnerID,
	)
	if err != nil {
		if IsUniqueViolation(err, groupNameConstraint) {
			return domain.NewError(domain.KindDuplicateName, "group name %q already taken", group.Name)
		}
		return fmt.Errorf("failed to update group: %w", err)
	}
	return expectAffected(res, "group", group.ID)
}

// SoftDelete marks the group deleted; it disappears from every read
func (r *GroupRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE groups
		SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return expectAffected(res, "group", id)
}

// ListVisible returns open groups plus every group the user belongs to
func (r *GroupRepository) ListVisible(ctx context.Context, userID string, limit int) ([]*domain.Group, error) {
	query := `
		SELECT g.id, g.name, g.type, g.max_members, g.owner_id, g.created_at
		FROM groups g
		WHERE g.deleted_at IS NULL
		  AND (g.type = 'open' OR EXISTS (
		      SELECT 1 FROM group_members m
		      WHERE m.group_id = g.id AND m.user_id = $1
		  ))
		ORDER BY g.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	groups := make([]*domain.Group, 0)
	for rows.Next() {
		group := &domain.Group{}
		if err := rows.Scan(
			&group.ID,
			&group.Name,
			&group.Type,
			&group.Capacity,
			&group.OwnerID,
			&group.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// AddMember inserts a membership row
func (r *GroupRepository) AddMember(ctx context.Context, member *domain.Membership) error {
	query := `
		INSERT INTO group_members (group_id, user_id, is_admin)
		VALUES ($1, $2, $3)
		RETURNING joined_at
	`
	err := r.db.QueryRowContext(ctx, query,
		member.GroupID,
		member.UserID,
		member.IsAdmin,
	).Scan(&member.JoinedAt)
	if err != nil {
		if IsUniqueViolation(err, groupMemberConstraint) {
			return domain.NewError(domain.KindAlreadyMember, "user %s is already a member", member.UserID)
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership row and reports whether one existed
func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) (bool, error) {
	query := `
		DELETE FROM group_members
		WHERE group_id = $1 AND user_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove member: %w", err)
	}
	return n > 0, nil
}

// GetMember retrieves one membership row
func (r *GroupRepository) GetMember(ctx context.Context, groupID, userID string) (*domain.Membership, error) {
	query := `
		SELECT group_id, user_id, is_admin, joined_at
		FROM group_members
		WHERE group_id = $1 AND user_id = $2
	`
	member := &domain.Membership{}
	err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(
		&member.GroupID,
		&member.UserID,
		&member.IsAdmin,
		&member.JoinedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "user %s is not a member of group %s", userID, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// IsMember checks if a user is a member of a group
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM group_members
			WHERE group_id = $1 AND user_id = $2
		)
	`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&exists)
	return exists, err
}

// SetAdmin changes the admin flag of a member
func (r *GroupRepository) SetAdmin(ctx context.Context, groupID, userID string, admin bool) error {
	query := `
		UPDATE group_members
		SET is_admin = $3
		WHERE group_id = $1 AND user_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, groupID, userID, admin)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return expectAffected(res, "member", userID)
}

// CountMembers returns the current member count of a group
func (r *GroupRepository) CountMembers(ctx context.Context, groupID string) (int, error) {
	query := `SELECT COUNT(*) FROM group_members WHERE group_id = $1`

	var count int
	if err := r.db.QueryRowContext(ctx, query, groupID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

// ListMembers returns members in join order
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]*domain.Membership, error) {
	query := `
		SELECT group_id, user_id, is_admin, joined_at
		FROM group_members
		WHERE group_id = $1
		ORDER BY joined_at, user_id
	`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	members := make([]*domain.Membership, 0)
	for rows.Next() {
		member := &domain.Membership{}
		if err := rows.Scan(
			&member.GroupID,
			&member.UserID,
			&member.IsAdmin,
			&member.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// DeleteMembers removes every membership of a group
func (r *GroupRepository) DeleteMembers(ctx context.Context, groupID string) error {
	query := `DELETE FROM group_members WHERE group_id = $1`

	if _, err := r.db.ExecContext(ctx, query, groupID); err != nil {
		return fmt.Errorf("failed to delete members: %w", err)
	}
	return nil
}

func expectAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.NewError(domain.KindNotFound, "%s %s not found", entity, id)
	}
	return nil
}
