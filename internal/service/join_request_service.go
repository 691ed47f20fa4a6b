package service

import (
	"context"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/observability"
)

// JoinRequestService handles requests to join a group that an admin resolves.
type JoinRequestService struct {
	store    domain.Store
	events   Broadcaster
	notifier Notifier
}

func NewJoinRequestService(store domain.Store, events Broadcaster, notifier Notifier) *JoinRequestService {
	if events == nil {
		events = noopBroadcaster{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &JoinRequestService{store: store, events: events, notifier: notifier}
}

// Create files a join request. A second request while one is pending
// returns the pending one.
func (s *JoinRequestService) Create(ctx context.Context, groupID, userID string) (*domain.JoinRequest, error) {
	var req *domain.JoinRequest
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		if _, err := r.Groups().LockByID(ctx, groupID); err != nil {
			return err
		}

		member, err := r.Groups().IsMember(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if member {
			return domain.NewError(domain.KindAlreadyMember, "user %s is already a member of group %s", userID, groupID)
		}

		req, err = findOptional(r.JoinRequests().FindPending(ctx, groupID, userID))
		if err != nil || req != nil {
			return err
		}

		req = &domain.JoinRequest{GroupID: groupID, RequesterID: userID, Status: domain.JoinRequestPending}
		return r.JoinRequests().Create(ctx, req)
	})
	observability.MembershipOperations.WithLabelValues("request", observability.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Approve admits the requester. A full group leaves the request pending.
func (s *JoinRequestService) Approve(ctx context.Context, groupID, requestID, adminID string) (*domain.JoinRequest, error) {
	var (
		req    *domain.JoinRequest
		group  *domain.Group
		count  int
		joined bool
	)
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		var err error
		group, req, err = s.lockPending(ctx, r, groupID, requestID, adminID)
		if err != nil {
			return err
		}

		member, err := r.Groups().IsMember(ctx, groupID, req.RequesterID)
		if err != nil {
			return err
		}
		if member {
			count, err = r.Groups().CountMembers(ctx, groupID)
		} else {
			count, err = admit(ctx, r, group, req.RequesterID)
			joined = err == nil
		}
		if err != nil {
			return err
		}

		return s.resolve(ctx, r, req, domain.JoinRequestApproved, adminID)
	})
	observability.MembershipOperations.WithLabelValues("approve", observability.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	if joined {
		s.events.BroadcastMembership(ctx, EventMemberJoined, groupID, req.RequesterID, count)
		s.notifier.NotifyRequestAccepted(ctx, group, req.RequesterID)
	}
	return req, nil
}

// Decline rejects a pending request.
func (s *JoinRequestService) Decline(ctx context.Context, groupID, requestID, adminID string) (*domain.JoinRequest, error) {
	var req *domain.JoinRequest
	err := s.store.WithTx(ctx, func(r domain.Repos) error {
		var err error
		_, req, err = s.lockPending(ctx, r, groupID, requestID, adminID)
		if err != nil {
			return err
		}
		return s.resolve(ctx, r, req, domain.JoinRequestDeclined, adminID)
	})
	observability.MembershipOperations.WithLabelValues("decline", observability.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListPending returns the pending requests of a group for its admins.
func (s *JoinRequestService) ListPending(ctx context.Context, groupID, adminID string) ([]*domain.JoinRequest, error) {
	group, err := s.store.Groups().GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireManager(ctx, s.store, group, adminID); err != nil {
		return nil, err
	}
	return s.store.JoinRequests().ListPending(ctx, groupID)
}

// lockPending locks the group and then the request, in that order, and
// checks that adminID may resolve it.
func (s *JoinRequestService) lockPending(ctx context.Context, r domain.Repos, groupID, requestID, adminID string) (*domain.Group, *domain.JoinRequest, error) {
	group, err := r.Groups().LockByID(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireManager(ctx, r, group, adminID); err != nil {
		return nil, nil, err
	}

	req, err := r.JoinRequests().LockByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req.GroupID != groupID {
		return nil, nil, domain.NewError(domain.KindNotFound, "join request %s not found in group %s", requestID, groupID)
	}
	if req.Status != domain.JoinRequestPending {
		return nil, nil, domain.NewError(domain.KindInvalidState, "join request %s is already %s", requestID, req.Status)
	}
	return group, req, nil
}

func (s *JoinRequestService) resolve(ctx context.Context, r domain.Repos, req *domain.JoinRequest, status domain.JoinRequestStatus, by string) error {
	now := time.Now().UTC()
	if err := r.JoinRequests().Resolve(ctx, req.ID, status, by, now); err != nil {
		return err
	}
	req.Status = status
	req.ResolvedAt = &now
	req.ResolvedBy = by
	return nil
}
