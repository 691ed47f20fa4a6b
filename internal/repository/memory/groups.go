package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"groupchat/internal/domain"
)

type groupRepo struct{ v *view }

func (r groupRepo) live(id string) (domain.Group, bool) {
	g, ok := r.v.d().groups[id]
	if !ok || g.DeletedAt != nil {
		return domain.Group{}, false
	}
	return g, true
}

func (r groupRepo) nameTaken(name, exceptID string) bool {
	for _, g := range r.v.d().groups {
		if g.DeletedAt == nil && g.ID != exceptID && strings.EqualFold(g.Name, name) {
			return true
		}
	}
	return false
}

func (r groupRepo) Create(_ context.Context, group *domain.Group) error {
	defer r.v.enter()()

	if r.nameTaken(group.Name, "") {
		return domain.NewError(domain.KindDuplicateName, "group name %q already taken", group.Name)
	}
	group.ID = newID()
	group.CreatedAt = time.Now().UTC()
	r.v.d().groups[group.ID] = *group
	return nil
}

func (r groupRepo) GetByID(_ context.Context, id string) (*domain.Group, error) {
	defer r.v.enter()()

	g, ok := r.live(id)
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "group %s not found", id)
	}
	return &g, nil
}

func (r groupRepo) LockByID(ctx context.Context, id string) (*domain.Group, error) {
	return r.GetByID(ctx, id)
}

func (r groupRepo) Update(_ context.Context, group *domain.Group) error {
	defer r.v.enter()()

	if _, ok := r.live(group.ID); !ok {
		return domain.NewError(domain.KindNotFound, "group %s not found", group.ID)
	}
	if r.nameTaken(group.Name, group.ID) {
		return domain.NewError(domain.KindDuplicateName, "group name %q already taken", group.Name)
	}
	r.v.d().groups[group.ID] = *group
	return nil
}

func (r groupRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	defer r.v.enter()()

	g, ok := r.live(id)
	if !ok {
		return domain.NewError(domain.KindNotFound, "group %s not found", id)
	}
	g.DeletedAt = &at
	r.v.d().groups[id] = g
	return nil
}

func (r groupRepo) ListVisible(_ context.Context, userID string, limit int) ([]*domain.Group, error) {
	defer r.v.enter()()

	d := r.v.d()
	groups := make([]*domain.Group, 0)
	for _, g := range d.groups {
		if g.DeletedAt != nil {
			continue
		}
		_, member := d.members[g.ID][userID]
		if g.Type == domain.GroupOpen || member {
			g := g
			groups = append(groups, &g)
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].CreatedAt.After(groups[j].CreatedAt)
	})
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

func (r groupRepo) AddMember(_ context.Context, member *domain.Membership) error {
	defer r.v.enter()()

	d := r.v.d()
	if d.members[member.GroupID] == nil {
		d.members[member.GroupID] = make(map[string]domain.Membership)
	}
	if _, exists := d.members[member.GroupID][member.UserID]; exists {
		return domain.NewError(domain.KindAlreadyMember, "user %s is already a member", member.UserID)
	}
	member.JoinedAt = time.Now().UTC()
	d.members[member.GroupID][member.UserID] = *member
	return nil
}

func (r groupRepo) RemoveMember(_ context.Context, groupID, userID string) (bool, error) {
	defer r.v.enter()()

	set := r.v.d().members[groupID]
	if _, ok := set[userID]; !ok {
		return false, nil
	}
	delete(set, userID)
	return true, nil
}

func (r groupRepo) GetMember(_ context.Context, groupID, userID string) (*domain.Membership, error) {
	defer r.v.enter()()

	m, ok := r.v.d().members[groupID][userID]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "user %s is not a member of group %s", userID, groupID)
	}
	return &m, nil
}

func (r groupRepo) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	defer r.v.enter()()

	_, ok := r.v.d().members[groupID][userID]
	return ok, nil
}

func (r groupRepo) SetAdmin(_ context.Context, groupID, userID string, admin bool) error {
	defer r.v.enter()()

	set := r.v.d().members[groupID]
	m, ok := set[userID]
	if !ok {
		return domain.NewError(domain.KindNotFound, "user %s is not a member of group %s", userID, groupID)
	}
	m.IsAdmin = admin
	set[userID] = m
	return nil
}

func (r groupRepo) CountMembers(_ context.Context, groupID string) (int, error) {
	defer r.v.enter()()

	return len(r.v.d().members[groupID]), nil
}

func (r groupRepo) ListMembers(_ context.Context, groupID string) ([]*domain.Membership, error) {
	defer r.v.enter()()

	set := r.v.d().members[groupID]
	members := make([]*domain.Membership, 0, len(set))
	for _, m := range set {
		m := m
		members = append(members, &m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].UserID < members[j].UserID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (r groupRepo) DeleteMembers(_ context.Context, groupID string) error {
	defer r.v.enter()()

	delete(r.v.d().members, groupID)
	return nil
}
