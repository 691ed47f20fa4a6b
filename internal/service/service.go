// Package service implements the group lifecycle and message ingress on top
// of a transactional domain.Store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"groupchat/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateInput runs struct tag validation and reports the first failing
// field as a validation error.
func validateInput(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewError(domain.KindValidation, "%s failed %s validation", strings.ToLower(fe.Field()), describeTag(fe))
	}
	return domain.WrapError(domain.KindValidation, err, "invalid input")
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
}

// Broadcaster pushes group events to live connections. Implementations
// never fail the caller.
type Broadcaster interface {
	BroadcastMessage(ctx context.Context, msg *domain.Message, sender *domain.UserInfo)
	BroadcastDeletion(ctx context.Context, groupID, messageID string)
	BroadcastMembership(ctx context.Context, event string, groupID, userID string, memberCount int)
	BroadcastGroupDeleted(ctx context.Context, groupID string)
	// DetachMember stops live delivery of groupID's events to userID.
	DetachMember(ctx context.Context, groupID, userID string)
}

// Notifier hands push notifications to the delivery pipeline. Calls are
// fire and forget.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, group *domain.Group, msg *domain.Message, sender *domain.UserInfo, recipients []string)
	NotifyGroupInvite(ctx context.Context, invite *domain.Invite, group *domain.Group)
	NotifyRequestAccepted(ctx context.Context, group *domain.Group, userID string)
}

// Membership event names sent through Broadcaster.BroadcastMembership.
const (
	EventMemberJoined = "member_joined"
	EventMemberLeft   = "member_left"
)

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastMessage(context.Context, *domain.Message, *domain.UserInfo) {}
func (noopBroadcaster) BroadcastDeletion(context.Context, string, string)                   {}
func (noopBroadcaster) BroadcastMembership(context.Context, string, string, string, int)    {}
func (noopBroadcaster) BroadcastGroupDeleted(context.Context, string)                       {}
func (noopBroadcaster) DetachMember(context.Context, string, string)                        {}

type noopNotifier struct{}

func (noopNotifier) NotifyNewMessage(context.Context, *domain.Group, *domain.Message, *domain.UserInfo, []string) {}
func (noopNotifier) NotifyGroupInvite(context.Context, *domain.Invite, *domain.Group)                             {}
func (noopNotifier) NotifyRequestAccepted(context.Context, *domain.Group, string)                                 {}

// requireManager allows the owner and admin members.
func requireManager(ctx context.Context, r domain.Repos, group *domain.Group, actorID string) error {
	if actorID == group.OwnerID {
		return nil
	}
	member, err := r.Groups().GetMember(ctx, group.ID, actorID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewError(domain.KindForbidden, "only group admins can do this")
	}
	if err != nil {
		return err
	}
	if !member.IsAdmin {
		return domain.NewError(domain.KindForbidden, "only group admins can do this")
	}
	return nil
}

func requireOwner(group *domain.Group, actorID string) error {
	if actorID != group.OwnerID {
		return domain.NewError(domain.KindForbidden, "only the group owner can do this")
	}
	return nil
}

func requireMember(ctx context.Context, r domain.Repos, groupID, userID string) error {
	ok, err := r.Groups().IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewError(domain.KindForbidden, "user %s is not a member of group %s", userID, groupID)
	}
	return nil
}

// admit inserts userID into the locked group if capacity allows and returns
// the new member count. The caller must hold the group row lock.
func admit(ctx context.Context, r domain.Repos, group *domain.Group, userID string) (int, error) {
	count, err := r.Groups().CountMembers(ctx, group.ID)
	if err != nil {
		return 0, err
	}
	if count >= group.Capacity {
		return count, domain.NewError(domain.KindGroupFull, "group %s is full (%d/%d)", group.ID, count, group.Capacity)
	}
	if err := r.Groups().AddMember(ctx, &domain.Membership{GroupID: group.ID, UserID: userID}); err != nil {
		return 0, err
	}
	return count + 1, nil
}

// findOptional converts a NotFound result into a nil value.
func findOptional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
