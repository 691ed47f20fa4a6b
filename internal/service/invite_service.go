package service

import (
	"context"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/observability"
)

// Invite responses accepted by InviteService.Respond.
const (
	InviteActionAccept  = "accept"
	InviteActionDecline = "decline"
)

// InviteService manages invitations into groups.
type InviteService struct {
	store    domain.Store
	events   Broadcaster
	notifier Notifier
}

func NewInviteService(store domain.Store, events Broadcaster, notifier Notifier) *InviteService {
	if events == nil {
		events = noopBroadcaster{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &InviteService{store: store, events: events, notifier: notifier}
}

// Create invites userID into the group. Inviting someone who already has a
// pending invite returns that invite; an invite that was already resolved
// cannot be reissued.
func (s *InviteService) Create(ctx context.Context, groupID, userID, inviterID string) (*domain.Invite, error) {
	if userID == "" {
		return nil, domain.NewError(domain.KindValidation, "user_id is required")
	}

	var (
		invite  *domain.Invite
		group   *domain.Group
		created bool
	)
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		var err error
		group, err = r.Groups().LockByID(ctx, groupID)
		if err != nil {
			return err
		}
		if err := requireMember(ctx, r, groupID, inviterID); err != nil {
			return err
		}

		member, err := r.Groups().IsMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if member {
			return domain.NewError(domain.KindAlreadyMember, "user %s is already a member of group %s", userID, groupID)
		}

		invite, err = findOptional(r.Invites().Find(ctx, groupID, userID))
		if err != nil {
			return err
		}
		if invite != nil {
			if invite.Status == domain.InvitePending {
				return nil
			}
			return domain.NewError(domain.KindInviteExists, "user %s was already invited to group %s (%s)", userID, groupID, invite.Status)
		}

		invite = &domain.Invite{GroupID: groupID, UserID: userID, InviterID: inviterID, Status: domain.InvitePending}
		created = true
		return r.Invites().Create(ctx, invite)
	})
	observability.MembershipOperations.WithLabelValues("invite", observability.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	if created {
		s.notifier.NotifyGroupInvite(ctx, invite, group)
	}
	return invite, nil
}

// Respond lets the invitee accept or decline a pending invite. Accepting
// admits the invitee if the group has room.
func (s *InviteService) Respond(ctx context.Context, inviteID, action, userID string) (*domain.Invite, error) {
	var status domain.InviteStatus
	switch action {
	case InviteActionAccept:
		status = domain.InviteAccepted
	case InviteActionDecline:
		status = domain.InviteDeclined
	default:
		return nil, domain.NewError(domain.KindValidation, "action must be accept or decline")
	}

	var (
		invite *domain.Invite
		count  int
		joined bool
	)
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		var err error
		invite, err = s.lockPending(ctx, r, inviteID)
		if err != nil {
			return err
		}
		if invite.UserID != userID {
			return domain.NewError(domain.KindForbidden, "only the invitee can respond to invite %s", inviteID)
		}

		if status == domain.InviteAccepted {
			group, err := r.Groups().LockByID(ctx, invite.GroupID)
			if err != nil {
				return err
			}
			member, err := r.Groups().IsMember(ctx, group.ID, userID)
			if err != nil {
				return err
			}
			if !member {
				if count, err = admit(ctx, r, group, userID); err != nil {
					return err
				}
				joined = true
			}
		}

		return s.setStatus(ctx, r, invite, status, userID)
	})
	observability.MembershipOperations.WithLabelValues("invite_"+action, observability.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	if joined {
		s.events.BroadcastMembership(ctx, EventMemberJoined, invite.GroupID, userID, count)
	}
	return invite, nil
}

// Revoke withdraws a pending invite. Only the inviter or the invitee may
// revoke it.
func (s *InviteService) Revoke(ctx context.Context, inviteID, userID string) (*domain.Invite, error) {
	var invite *domain.Invite
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		var err error
		invite, err = s.lockPending(ctx, r, inviteID)
		if err != nil {
			return err
		}
		if userID != invite.InviterID && userID != invite.UserID {
			return domain.NewError(domain.KindForbidden, "only the inviter or the invitee can revoke invite %s", inviteID)
		}
		return s.setStatus(ctx, r, invite, domain.InviteRevoked, userID)
	})
	observability.MembershipOperations.WithLabelValues("invite_revoke", observability.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return invite, nil
}

// List returns the invites of a group, optionally filtered by status, to
// its members.
func (s *InviteService) List(ctx context.Context, groupID, actorID string, status domain.InviteStatus) ([]*domain.Invite, error) {
	if _, err := s.store.Groups().GetByID(ctx, groupID); err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.store, groupID, actorID); err != nil {
		return nil, err
	}
	return s.store.Invites().ListByGroup(ctx, groupID, status)
}

// ListForUser returns the pending invites addressed to userID.
func (s *InviteService) ListForUser(ctx context.Context, userID string) ([]*domain.Invite, error) {
	return s.store.Invites().ListPendingForUser(ctx, userID)
}

// lockPending locks the invite's group before the invite itself so that
// responses and joins on the same group serialize in one order.
func (s *InviteService) lockPending(ctx context.Context, r domain.Repos, inviteID string) (*domain.Invite, error) {
	current, err := r.Invites().GetByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if _, err := r.Groups().LockByID(ctx, current.GroupID); err != nil {
		return nil, err
	}

	invite, err := r.Invites().LockByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Status != domain.InvitePending {
		return nil, domain.NewError(domain.KindInvalidState, "invite %s is already %s", inviteID, invite.Status)
	}
	return invite, nil
}

func (s *InviteService) setStatus(ctx context.Context, r domain.Repos, invite *domain.Invite, status domain.InviteStatus, by string) error {
	now := time.Now().UTC()
	if err := r.Invites().UpdateStatus(ctx, invite.ID, status, by, now); err != nil {
		return err
	}
	invite.Status = status
	invite.UpdatedAt = now
	invite.UpdatedBy = by
	return nil
}
