package domain

import (
	"context"
	"time"
)

// Message represents a chat message
type Message struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageRepository defines the interface for message data access
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListByGroup returns newest first. A non-empty before restricts the
	// result to messages older than that message id.
	ListByGroup(ctx context.Context, groupID, before string, limit int) ([]*Message, error)
	Delete(ctx context.Context, id string) error
	DeleteByGroup(ctx context.Context, groupID string) error
}
