package testutil

import (
	"fmt"
	"sync/atomic"

	"groupchat/internal/domain"
)

var idCounter atomic.Int64

func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// NewUserID returns a fresh user ID
func NewUserID() string {
	return nextID("user")
}

// NewTestUserInfo returns display info for userID
func NewTestUserInfo(userID string) domain.UserInfo {
	return domain.UserInfo{ID: userID, Name: "Test " + userID, Email: userID + "@example.com"}
}

// GroupOption customizes NewTestGroup
type GroupOption func(*domain.Group)

// NewTestGroup returns an unsaved open group with capacity 10 and a unique
// name. ID and CreatedAt are left for the store to assign.
func NewTestGroup(opts ...GroupOption) *domain.Group {
	g := &domain.Group{
		Name:     nextID("group"),
		Type:     domain.GroupOpen,
		Capacity: 10,
		OwnerID:  NewUserID(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func WithGroupName(name string) GroupOption {
	return func(g *domain.Group) { g.Name = name }
}

func WithPrivate() GroupOption {
	return func(g *domain.Group) { g.Type = domain.GroupPrivate }
}

func WithCapacity(n int) GroupOption {
	return func(g *domain.Group) { g.Capacity = n }
}

func WithOwner(userID string) GroupOption {
	return func(g *domain.Group) { g.OwnerID = userID }
}

// NewTestMessage returns an unsaved message
func NewTestMessage(groupID, userID, text string) *domain.Message {
	return &domain.Message{GroupID: groupID, UserID: userID, Text: text}
}

// NewTestInvite returns an unsaved pending invite
func NewTestInvite(groupID, userID, inviterID string) *domain.Invite {
	return &domain.Invite{
		GroupID:   groupID,
		UserID:    userID,
		InviterID: inviterID,
		Status:    domain.InvitePending,
	}
}
