// Package notify publishes push notification jobs to RabbitMQ and runs the
// worker that consumes them.
package notify

import (
	"time"
	"unicode/utf8"

	"groupchat/internal/domain"
)

// Job kinds, also used as routing key suffixes.
const (
	KindNewMessage      = "new_message"
	KindGroupInvite     = "group_invite"
	KindRequestAccepted = "request_accepted"
)

const previewLength = 100

// PushJob is one notification addressed to a set of users.
type PushJob struct {
	Kind       string            `json:"kind"`
	Recipients []string          `json:"recipients"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	Timestamp  int64             `json:"timestamp"`
}

// NewMessageJob notifies the other members of a group about a message.
func NewMessageJob(group *domain.Group, msg *domain.Message, sender *domain.UserInfo, recipients []string) *PushJob {
	name := msg.UserID
	if sender != nil && sender.Name != "" {
		name = sender.Name
	}
	groupName := ""
	if group != nil {
		groupName = group.Name
	}
	return &PushJob{
		Kind:       KindNewMessage,
		Recipients: recipients,
		Title:      name,
		Body:       preview(msg.Text),
		Data: map[string]string{
			"group_id":   msg.GroupID,
			"group_name": groupName,
			"message_id": msg.ID,
			"sender_id":  msg.UserID,
		},
		Timestamp: time.Now().Unix(),
	}
}

// GroupInviteJob notifies the invitee.
func GroupInviteJob(invite *domain.Invite, group *domain.Group) *PushJob {
	return &PushJob{
		Kind:       KindGroupInvite,
		Recipients: []string{invite.UserID},
		Title:      "Group invitation",
		Body:       "You were invited to join " + group.Name,
		Data: map[string]string{
			"group_id":   group.ID,
			"invite_id":  invite.ID,
			"inviter_id": invite.InviterID,
		},
		Timestamp: time.Now().Unix(),
	}
}

// RequestAcceptedJob notifies a user that their join request was approved.
func RequestAcceptedJob(group *domain.Group, userID string) *PushJob {
	return &PushJob{
		Kind:       KindRequestAccepted,
		Recipients: []string{userID},
		Title:      "Request accepted",
		Body:       "You are now a member of " + group.Name,
		Data:       map[string]string{"group_id": group.ID},
		Timestamp:  time.Now().Unix(),
	}
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	return string([]rune(text)[:previewLength]) + "..."
}
