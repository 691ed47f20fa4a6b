package memory

import (
	"context"
	"sort"
	"time"

	"groupchat/internal/domain"
)

type inviteRepo struct{ v *view }

func (r inviteRepo) Create(_ context.Context, invite *domain.Invite) error {
	defer r.v.enter()()

	d := r.v.d()
	for _, existing := range d.invites {
		if existing.GroupID == invite.GroupID && existing.UserID == invite.UserID {
			return domain.NewError(domain.KindInviteExists, "invite for user %s already exists", invite.UserID)
		}
	}
	now := time.Now().UTC()
	invite.ID = newID()
	invite.CreatedAt = now
	invite.UpdatedAt = now
	d.invites[invite.ID] = *invite
	return nil
}

func (r inviteRepo) GetByID(_ context.Context, id string) (*domain.Invite, error) {
	defer r.v.enter()()

	inv, ok := r.v.d().invites[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "invite %s not found", id)
	}
	return &inv, nil
}

func (r inviteRepo) LockByID(ctx context.Context, id string) (*domain.Invite, error) {
	return r.GetByID(ctx, id)
}

func (r inviteRepo) Find(_ context.Context, groupID, userID string) (*domain.Invite, error) {
	defer r.v.enter()()

	for _, inv := range r.v.d().invites {
		if inv.GroupID == groupID && inv.UserID == userID {
			return &inv, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, "no invite for user %s in group %s", userID, groupID)
}

func (r inviteRepo) UpdateStatus(_ context.Context, id string, status domain.InviteStatus, by string, at time.Time) error {
	defer r.v.enter()()

	d := r.v.d()
	inv, ok := d.invites[id]
	if !ok {
		return domain.NewError(domain.KindNotFound, "invite %s not found", id)
	}
	inv.Status = status
	inv.UpdatedBy = by
	inv.UpdatedAt = at
	d.invites[id] = inv
	return nil
}

func (r inviteRepo) ListByGroup(_ context.Context, groupID string, status domain.InviteStatus) ([]*domain.Invite, error) {
	defer r.v.enter()()

	return r.collect(func(inv domain.Invite) bool {
		return inv.GroupID == groupID && (status == "" || inv.Status == status)
	}), nil
}

func (r inviteRepo) ListPendingForUser(_ context.Context, userID string) ([]*domain.Invite, error) {
	defer r.v.enter()()

	return r.collect(func(inv domain.Invite) bool {
		return inv.UserID == userID && inv.Status == domain.InvitePending
	}), nil
}

func (r inviteRepo) collect(keep func(domain.Invite) bool) []*domain.Invite {
	invites := make([]*domain.Invite, 0)
	for _, inv := range r.v.d().invites {
		if keep(inv) {
			inv := inv
			invites = append(invites, &inv)
		}
	}
	sort.Slice(invites, func(i, j int) bool {
		return invites[i].CreatedAt.After(invites[j].CreatedAt)
	})
	return invites
}

func (r inviteRepo) DeleteByGroup(_ context.Context, groupID string) error {
	defer r.v.enter()()

	d := r.v.d()
	for id, inv := range d.invites {
		if inv.GroupID == groupID {
			delete(d.invites, id)
		}
	}
	return nil
}
