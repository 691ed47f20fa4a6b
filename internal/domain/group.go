package domain

import (
	"context"
	"time"
)

// GroupType controls who may join a group without an invite.
type GroupType string

const (
	GroupOpen    GroupType = "open"
	GroupPrivate GroupType = "private"
)

// Group is a named, capacity-bounded chat room.
type Group struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      GroupType  `json:"type"`
	Capacity  int        `json:"capacity"`
	OwnerID   string     `json:"owner_id"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Membership records that a user belongs to a group.
type Membership struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	IsAdmin  bool      `json:"is_admin"`
	JoinedAt time.Time `json:"joined_at"`
}

// GroupRepository defines data access for groups and their members.
// Deleted groups are invisible to every read.
type GroupRepository interface {
	Create(ctx context.Context, group *Group) error
	GetByID(ctx context.Context, id string) (*Group, error)
	// LockByID reads the group and holds a row lock until the transaction ends.
	LockByID(ctx context.Context, id string) (*Group, error)
	Update(ctx context.Context, group *Group) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	ListVisible(ctx context.Context, userID string, limit int) ([]*Group, error)

	AddMember(ctx context.Context, member *Membership) error
	RemoveMember(ctx context.Context, groupID, userID string) (bool, error)
	GetMember(ctx context.Context, groupID, userID string) (*Membership, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	SetAdmin(ctx context.Context, groupID, userID string, admin bool) error
	CountMembers(ctx context.Context, groupID string) (int, error)
	ListMembers(ctx context.Context, groupID string) ([]*Membership, error)
	DeleteMembers(ctx context.Context, groupID string) error
}
