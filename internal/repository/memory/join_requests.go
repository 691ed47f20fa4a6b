package memory

import (
	"context"
	"sort"
	"time"

	"groupchat/internal/domain"
)

type joinRequestRepo struct{ v *view }

func (r joinRequestRepo) Create(_ context.Context, req *domain.JoinRequest) error {
	defer r.v.enter()()

	req.ID = newID()
	req.CreatedAt = time.Now().UTC()
	r.v.d().joinRequests[req.ID] = *req
	return nil
}

func (r joinRequestRepo) GetByID(_ context.Context, id string) (*domain.JoinRequest, error) {
	defer r.v.enter()()

	req, ok := r.v.d().joinRequests[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "join request %s not found", id)
	}
	return &req, nil
}

func (r joinRequestRepo) LockByID(ctx context.Context, id string) (*domain.JoinRequest, error) {
	return r.GetByID(ctx, id)
}

func (r joinRequestRepo) FindPending(_ context.Context, groupID, userID string) (*domain.JoinRequest, error) {
	defer r.v.enter()()

	for _, req := range r.v.d().joinRequests {
		if req.GroupID == groupID && req.RequesterID == userID && req.Status == domain.JoinRequestPending {
			return &req, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, "no pending join request for user %s", userID)
}

func (r joinRequestRepo) Resolve(_ context.Context, id string, status domain.JoinRequestStatus, by string, at time.Time) error {
	defer r.v.enter()()

	d := r.v.d()
	req, ok := d.joinRequests[id]
	if !ok {
		return domain.NewError(domain.KindNotFound, "join request %s not found", id)
	}
	req.Status = status
	req.ResolvedBy = by
	req.ResolvedAt = &at
	d.joinRequests[id] = req
	return nil
}

func (r joinRequestRepo) ListPending(_ context.Context, groupID string) ([]*domain.JoinRequest, error) {
	defer r.v.enter()()

	reqs := make([]*domain.JoinRequest, 0)
	for _, req := range r.v.d().joinRequests {
		if req.GroupID == groupID && req.Status == domain.JoinRequestPending {
			req := req
			reqs = append(reqs, &req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
	return reqs, nil
}

func (r joinRequestRepo) DeleteByGroup(_ context.Context, groupID string) error {
	defer r.v.enter()()

	d := r.v.d()
	for id, req := range d.joinRequests {
		if req.GroupID == groupID {
			delete(d.joinRequests, id)
		}
	}
	return nil
}
