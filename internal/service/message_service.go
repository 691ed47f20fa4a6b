package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"groupchat/internal/domain"
	"groupchat/internal/observability"

	"github.com/samber/lo"
)

// MaxMessageLength is the maximum message length in runes.
const MaxMessageLength = 1000

// MessageService stores messages sent to a group and fans them out.
type MessageService struct {
	store     domain.Store
	directory domain.UserDirectory
	events    Broadcaster
	notifier  Notifier
}

func NewMessageService(store domain.Store, directory domain.UserDirectory, events Broadcaster, notifier Notifier) *MessageService {
	if events == nil {
		events = noopBroadcaster{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &MessageService{store: store, directory: directory, events: events, notifier: notifier}
}

// Send persists a message from userID and broadcasts it to the group. The
// message is durable before anyone sees it.
func (s *MessageService) Send(ctx context.Context, groupID, userID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.NewError(domain.KindValidation, "message text must not be empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, domain.NewError(domain.KindValidation, "message exceeds %d characters", MaxMessageLength)
	}

	msg := &domain.Message{GroupID: groupID, UserID: userID, Text: text}
	var (
		group      *domain.Group
		recipients []string
	)
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		var err error
		if group, err = r.Groups().GetByID(ctx, groupID); err != nil {
			return err
		}
		if err := requireMember(ctx, r, groupID, userID); err != nil {
			return err
		}
		if err := r.Messages().Create(ctx, msg); err != nil {
			return err
		}

		members, err := r.Groups().ListMembers(ctx, groupID)
		if err != nil {
			return err
		}
		recipients = lo.Without(lo.Map(members, func(m *domain.Membership, _ int) string {
			return m.UserID
		}), userID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sender := s.sender(ctx, userID)
	s.events.BroadcastMessage(ctx, msg, sender)
	s.notifier.NotifyNewMessage(ctx, group, msg, sender, recipients)
	return msg, nil
}

// List returns the newest messages of a group, optionally before a message
// ID, newest first.
func (s *MessageService) List(ctx context.Context, groupID, userID string, limit int, before string) ([]*domain.Message, error) {
	if _, err := s.store.Groups().GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.store, groupID, userID); err != nil {
		return nil, err
	}
	return s.store.Messages().ListByGroup(ctx, groupID, before, clampLimit(limit))
}

// Remove deletes a message. Only the group owner may remove messages.
func (s *MessageService) Remove(ctx context.Context, groupID, actorID, messageID string) error {
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		group, err := r.Groups().GetByID(ctx, groupID)
		if err != nil {
			return err
		}
		if err := requireOwner(group, actorID); err != nil {
			return err
		}

		msg, err := r.Messages().GetByID(ctx, messageID)
		if err != nil {
			return err
		}
		if msg.GroupID != groupID {
			return domain.NewError(domain.KindNotFound, "message %s not found in group %s", messageID, groupID)
		}
		return r.Messages().Delete(ctx, messageID)
	})
	if err != nil {
		return err
	}

	s.events.BroadcastDeletion(ctx, groupID, messageID)
	return nil
}

// sender resolves display info, falling back to the bare user ID.
func (s *MessageService) sender(ctx context.Context, userID string) *domain.UserInfo {
	if s.directory != nil {
		info, err := s.directory.GetDisplayInfo(ctx, userID)
		if err == nil {
			return info
		}
		observability.FromContext(ctx).Warn("sender lookup failed", "user_id", userID, "error", err)
	}
	return &domain.UserInfo{ID: userID, Name: userID}
}
