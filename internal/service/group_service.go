package service

import (
	"context"
	"strings"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/observability"

	"github.com/samber/lo"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// GroupService owns the group membership state machine.
type GroupService struct {
	store  domain.Store
	events Broadcaster
}

// NewGroupService creates a group service. events may be nil.
func NewGroupService(store domain.Store, events Broadcaster) *GroupService {
	if events == nil {
		events = noopBroadcaster{}
	}
	return &GroupService{store: store, events: events}
}

// CreateGroupInput carries the fields of a new group.
type CreateGroupInput struct {
	Name      string           `json:"name" validate:"required,max=100"`
	Type      domain.GroupType `json:"type" validate:"required,oneof=open private"`
	Capacity  int              `json:"capacity" validate:"gt=0,lte=10000"`
	OwnerID   string           `json:"-" validate:"required"`
	MemberIDs []string         `json:"member_ids"`
}

// UpdateGroupInput carries a partial update; nil fields are left unchanged.
type UpdateGroupInput struct {
	Name     *string           `json:"name" validate:"omitempty,max=100"`
	Type     *domain.GroupType `json:"type" validate:"omitempty,oneof=open private"`
	Capacity *int              `json:"capacity" validate:"omitempty,gt=0,lte=10000"`
}

// CreateGroup creates the group with the owner as admin member. Initial
// members are deduplicated and silently truncated to the remaining capacity.
func (s *GroupService) CreateGroup(ctx context.Context, in CreateGroupInput) (*domain.Group, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	initial := lo.Without(lo.Uniq(lo.Compact(lo.Map(in.MemberIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	}))), in.OwnerID)
	if room := in.Capacity - 1; len(initial) > room {
		initial = initial[:room]
	}

	group := &domain.Group{
		Name:     in.Name,
		Type:     in.Type,
		Capacity: in.Capacity,
		OwnerID:  in.OwnerID,
	}

	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		if err := r.Groups().Create(ctx, group); err != nil {
			return err
		}
		owner := &domain.Membership{GroupID: group.ID, UserID: in.OwnerID, IsAdmin: true}
		if err := r.Groups().AddMember(ctx, owner); err != nil {
			return err
		}
		for _, userID := range initial {
			if err := r.Groups().AddMember(ctx, &domain.Membership{GroupID: group.ID, UserID: userID}); err != nil {
				return err
			}
		}
		return nil
	})
	observability.MembershipOperations.WithLabelValues("create", observability.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Info("group created",
		"group_id", group.ID,
		"type", string(group.Type),
		"capacity", group.Capacity,
		"initial_members", len(initial)+1)
	return group, nil
}

// Join adds userID to the group and returns the member count. Joining a
// group the user already belongs to returns the current count. Private
// groups require a pending invite unless the user is the owner; a pending
// invite is marked accepted.
func (s *GroupService) Join(ctx context.Context, groupID, userID string) (int, error) {
	var (
		count  int
		joined bool
	)
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		group, err := r.Groups().LockByID(ctx, groupID)
		if err != nil {
			return err
		}

		member, err := r.Groups().IsMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if member {
			count, err = r.Groups().CountMembers(ctx, groupID)
			return err
		}

		invite, err := findOptional(r.Invites().Find(ctx, groupID, userID))
		if err != nil {
			return err
		}
		if invite != nil && invite.Status != domain.InvitePending {
			invite = nil
		}
		if group.Type == domain.GroupPrivate && userID != group.OwnerID && invite == nil {
			return domain.NewError(domain.KindInvitationRequired, "group %s is private; an invite is required", groupID)
		}

		count, err = admit(ctx, r, group, userID)
		if err != nil {
			return err
		}
		joined = true

		if invite != nil {
			return r.Invites().UpdateStatus(ctx, invite.ID, domain.InviteAccepted, userID, time.Now().UTC())
		}
		return nil
	})
	observability.MembershipOperations.WithLabelValues("join", observability.Outcome(err)).Inc()
	if err != nil {
		return 0, err
	}

	if joined {
		s.events.BroadcastMembership(ctx, EventMemberJoined, groupID, userID, count)
	}
	return count, nil
}

// Leave removes userID from the group and returns the member count. It is a
// no-op for non-members. The owner cannot leave; ownership has to be
// transferred or the group destroyed first.
func (s *GroupService) Leave(ctx context.Context, groupID, userID string) (int, error) {
	count, removed, err := s.removeMember(ctx, groupID, userID, func(r domain.Repos, group *domain.Group) error {
		if userID == group.OwnerID {
			return domain.NewError(domain.KindInvalidState, "the owner cannot leave; transfer ownership or destroy the group")
		}
		return nil
	})
	observability.MembershipOperations.WithLabelValues("leave", observability.Outcome(err)).Inc()
	if err != nil {
		return 0, err
	}
	if removed {
		s.events.BroadcastMembership(ctx, EventMemberLeft, groupID, userID, count)
		s.events.DetachMember(ctx, groupID, userID)
	}
	return count, nil
}

// RemoveMember removes userID on behalf of actorID. Admins may remove
// regular members, the owner may remove anyone but themself.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, actorID, userID string) (int, error) {
	if actorID == userID {
		return s.Leave(ctx, groupID, userID)
	}

	count, removed, err := s.removeMember(ctx, groupID, userID, func(r domain.Repos, group *domain.Group) error {
		if err := requireManager(ctx, r, group, actorID); err != nil {
			return err
		}
		if userID == group.OwnerID {
			return domain.NewError(domain.KindInvalidState, "the owner cannot be removed")
		}
		if actorID != group.OwnerID {
			target, err := findOptional(r.Groups().GetMember(ctx, groupID, userID))
			if err != nil {
				return err
			}
			if target != nil && target.IsAdmin {
				return domain.NewError(domain.KindForbidden, "only the owner can remove an admin")
			}
		}
		return nil
	})
	observability.MembershipOperations.WithLabelValues("remove", observability.Outcome(err)).Inc()
	if err != nil {
		return 0, err
	}
	if removed {
		s.events.BroadcastMembership(ctx, EventMemberLeft, groupID, userID, count)
		s.events.DetachMember(ctx, groupID, userID)
	}
	return count, nil
}

func (s *GroupService) removeMember(ctx context.Context, groupID, userID string, check func(domain.Repos, *domain.Group) error) (int, bool, error) {
	var (
		count   int
		removed bool
	)
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		group, err := r.Groups().LockByID(ctx, groupID)
		if err != nil {
			return err
		}
		if err := check(r, group); err != nil {
			return err
		}
		removed, err = r.Groups().RemoveMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		count, err = r.Groups().CountMembers(ctx, groupID)
		return err
	})
	return count, removed, err
}

// TransferOwner hands ownership to an existing member, who becomes an admin.
func (s *GroupService) TransferOwner(ctx context.Context, groupID, actorID, newOwnerID string) error {
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		group, err := r.Groups().LockByID(ctx, groupID)
		if err != nil {
			return err
		}
		if err := requireOwner(group, actorID); err != nil {
			return err
		}
		if newOwnerID == group.OwnerID {
			return nil
		}

		member, err := r.Groups().IsMember(ctx, groupID, newOwnerID)
		if err != nil {
			return err
		}
		if !member {
			return domain.NewError(domain.KindValidation, "new owner %s must be a member of the group", newOwnerID)
		}

		group.OwnerID = newOwnerID
		if err := r.Groups().Update(ctx, group); err != nil {
			return err
		}
		return r.Groups().SetAdmin(ctx, groupID, newOwnerID, true)
	})
	observability.MembershipOperations.WithLabelValues("transfer_owner", observability.Outcome(err)).Inc()
	return err
}

// Destroy deletes the group with all of its members, messages, invites and
// join requests.
func (s *GroupService) Destroy(ctx context.Context, groupID, actorID string) error {
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		group, err := r.Groups().LockByID(ctx, groupID)
		if err != nil {
			return err
		}
		if err := requireOwner(group, actorID); err != nil {
			return err
		}
		if err := r.Messages().DeleteByGroup(ctx, groupID); err != nil {
			return err
		}
		if err := r.Invites().DeleteByGroup(ctx, groupID); err != nil {
			return err
		}
		if err := r.JoinRequests().DeleteByGroup(ctx, groupID); err != nil {
			return err
		}
		if err := r.Groups().DeleteMembers(ctx, groupID); err != nil {
			return err
		}
		return r.Groups().SoftDelete(ctx, groupID, time.Now().UTC())
	})
	observability.MembershipOperations.WithLabelValues("destroy", observability.Outcome(err)).Inc()
	if err != nil {
		return err
	}

	observability.FromContext(ctx).Info("group destroyed", "group_id", groupID)
	s.events.BroadcastGroupDeleted(ctx, groupID)
	return nil
}

// Update applies a partial update. Only the owner may update, and the
// capacity cannot drop below the current member count.
func (s *GroupService) Update(ctx context.Context, groupID, actorID string, in UpdateGroupInput) (*domain.Group, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, domain.NewError(domain.KindValidation, "name must not be empty")
		}
		in.Name = &name
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var group *domain.Group
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		var err error
		group, err = r.Groups().LockByID(ctx, groupID)
		if err != nil {
			return err
		}
		if err := requireOwner(group, actorID); err != nil {
			return err
		}

		if in.Name != nil {
			group.Name = *in.Name
		}
		if in.Type != nil {
			group.Type = *in.Type
		}
		if in.Capacity != nil {
			count, err := r.Groups().CountMembers(ctx, groupID)
			if err != nil {
				return err
			}
			if *in.Capacity < count {
				return domain.NewError(domain.KindValidation, "capacity %d is below the current member count %d", *in.Capacity, count)
			}
			group.Capacity = *in.Capacity
		}
		return r.Groups().Update(ctx, group)
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// Get returns a live group.
func (s *GroupService) Get(ctx context.Context, groupID string) (*domain.Group, error) {
	return s.store.Groups().GetByID(ctx, groupID)
}

// ListVisible returns open groups and the private groups userID belongs to.
func (s *GroupService) ListVisible(ctx context.Context, userID string, limit int) ([]*domain.Group, error) {
	return s.store.Groups().ListVisible(ctx, userID, clampLimit(limit))
}

// Members lists the members of a group. Members of private groups are only
// visible to other members.
func (s *GroupService) Members(ctx context.Context, groupID, actorID string) ([]*domain.Membership, error) {
	group, err := s.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.Type == domain.GroupPrivate {
		if err := requireMember(ctx, s.store, groupID, actorID); err != nil {
			return nil, err
		}
	}
	return s.store.Groups().ListMembers(ctx, groupID)
}

// IsMember reports whether userID belongs to the live group groupID.
func (s *GroupService) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if _, err := s.store.Groups().GetByID(ctx, groupID); err != nil {
		return false, err
	}
	return s.store.Groups().IsMember(ctx, groupID, userID)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}
