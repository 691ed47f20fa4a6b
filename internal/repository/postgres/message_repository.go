package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"groupchat/internal/domain"
)

// MessageRepository implements domain.MessageRepository for PostgreSQL
type MessageRepository struct {
	db DBTX
}

// NewMessageRepository creates a new PostgreSQL message repository
func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message into the database
func (r *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (group_id, user_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		message.GroupID,
		message.UserID,
		message.Text,
	).Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	query := `
		SELECT id, group_id, user_id, text, created_at
		FROM messages
		WHERE id = $1
	`
	msg := &domain.Message{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.GroupID,
		&msg.UserID,
		&msg.Text,
		&msg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "message %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListByGroup retrieves messages for a group, newest first
func (r *MessageRepository) ListByGroup(ctx context.Context, groupID, before string, limit int) ([]*domain.Message, error) {
	query := `
		SELECT id, group_id, user_id, text, created_at
		FROM messages
		WHERE group_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	args := []any{groupID, limit}
	if before != "" {
		query = `
		SELECT m.id, m.group_id, m.user_id, m.text, m.created_at
		FROM messages m, messages c
		WHERE m.group_id = $1 AND c.id = $3
		  AND (m.created_at, m.id) < (c.created_at, c.id)
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2
	`
		args = append(args, before)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, limit)
	for rows.Next() {
		msg := &domain.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.GroupID,
			&msg.UserID,
			&msg.Text,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return expectAffected(res, "message", id)
}

func (r *MessageRepository) DeleteByGroup(ctx context.Context, groupID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}
