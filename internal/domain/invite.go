package domain

import (
	"context"
	"time"
)

type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
	InviteRevoked  InviteStatus = "revoked"
)

// Invite is an offer for a user to join a group. Only pending invites change.
type Invite struct {
	ID        string       `json:"id"`
	GroupID   string       `json:"group_id"`
	UserID    string       `json:"user_id"`
	InviterID string       `json:"inviter_id"`
	Status    InviteStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	UpdatedBy string       `json:"updated_by,omitempty"`
}

// InviteRepository stores at most one invite per (group, user) pair.
type InviteRepository interface {
	Create(ctx context.Context, invite *Invite) error
	GetByID(ctx context.Context, id string) (*Invite, error)
	LockByID(ctx context.Context, id string) (*Invite, error)
	Find(ctx context.Context, groupID, userID string) (*Invite, error)
	UpdateStatus(ctx context.Context, id string, status InviteStatus, by string, at time.Time) error
	// ListByGroup returns every invite of the group when status is empty.
	ListByGroup(ctx context.Context, groupID string, status InviteStatus) ([]*Invite, error)
	ListPendingForUser(ctx context.Context, userID string) ([]*Invite, error)
	DeleteByGroup(ctx context.Context, groupID string) error
}
