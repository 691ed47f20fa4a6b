// Package broadcast turns group events into wire payloads and hands them to
// the connection registry.
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/observability"
)

// Event types pushed to group members.
const (
	TypeNewMessage     = "new_message"
	TypeMessageDeleted = "message_deleted"
	TypeGroupDeleted   = "group_deleted"
)

// Deliverer enqueues a payload on every live connection joined to a group
// and detaches connections whose user is no longer a member.
type Deliverer interface {
	Deliver(groupID string, payload []byte) int
	Evict(groupID, userID string) int
	EvictGroup(groupID string) int
}

// Sender identifies the author of a message.
type Sender struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// NewMessageEvent is the payload of a new_message push.
type NewMessageEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Sender    Sender    `json:"sender"`
}

// MessageDeletedEvent is the payload of a message_deleted push.
type MessageDeletedEvent struct {
	Type      string `json:"type"`
	GroupID   string `json:"group_id"`
	MessageID string `json:"message_id"`
}

// GroupDeletedEvent is the payload of a group_deleted push.
type GroupDeletedEvent struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

// MembershipEvent is the payload of member_joined and member_left pushes.
type MembershipEvent struct {
	Type        string `json:"type"`
	GroupID     string `json:"group_id"`
	UserID      string `json:"user_id"`
	MemberCount int    `json:"member_count"`
}

// Fanout implements service.Broadcaster. Payloads are marshalled once per
// event regardless of the number of recipients.
type Fanout struct {
	deliverer Deliverer
}

func NewFanout(deliverer Deliverer) *Fanout {
	return &Fanout{deliverer: deliverer}
}

func (f *Fanout) BroadcastMessage(ctx context.Context, msg *domain.Message, sender *domain.UserInfo) {
	event := NewMessageEvent{
		Type:      TypeNewMessage,
		ID:        msg.ID,
		GroupID:   msg.GroupID,
		UserID:    msg.UserID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
		Sender:    Sender{ID: msg.UserID, Name: msg.UserID},
	}
	if sender != nil {
		event.Sender = Sender{ID: sender.ID, Name: sender.Name, Email: sender.Email}
	}
	f.publish(ctx, msg.GroupID, event.Type, event)
}

func (f *Fanout) BroadcastDeletion(ctx context.Context, groupID, messageID string) {
	f.publish(ctx, groupID, TypeMessageDeleted, MessageDeletedEvent{
		Type:      TypeMessageDeleted,
		GroupID:   groupID,
		MessageID: messageID,
	})
}

func (f *Fanout) BroadcastMembership(ctx context.Context, event, groupID, userID string, memberCount int) {
	f.publish(ctx, groupID, event, MembershipEvent{
		Type:        event,
		GroupID:     groupID,
		UserID:      userID,
		MemberCount: memberCount,
	})
}

// BroadcastGroupDeleted tells the group's live connections the group is gone
// and detaches all of them.
func (f *Fanout) BroadcastGroupDeleted(ctx context.Context, groupID string) {
	f.publish(ctx, groupID, TypeGroupDeleted, GroupDeletedEvent{Type: TypeGroupDeleted, GroupID: groupID})
	evicted := f.deliverer.EvictGroup(groupID)
	observability.FromContext(ctx).Debug("group connections detached", "group_id", groupID, "connections", evicted)
}

// DetachMember stops delivering the group's events to userID's connections.
func (f *Fanout) DetachMember(ctx context.Context, groupID, userID string) {
	if n := f.deliverer.Evict(groupID, userID); n > 0 {
		observability.FromContext(ctx).Debug("member connections detached",
			"group_id", groupID,
			"user_id", userID,
			"connections", n)
	}
}

func (f *Fanout) publish(ctx context.Context, groupID, eventType string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		observability.FromContext(ctx).Error("failed to marshal broadcast event",
			"type", eventType,
			"group_id", groupID,
			"error", err)
		return
	}

	delivered := f.deliverer.Deliver(groupID, payload)
	if delivered > 0 {
		observability.WebSocketMessagesSent.WithLabelValues(eventType).Add(float64(delivered))
	}
	observability.FromContext(ctx).Debug("event broadcast",
		"type", eventType,
		"group_id", groupID,
		"recipients", delivered)
}
