package memory

import (
	"context"
	"slices"
	"time"

	"groupchat/internal/domain"
)

type messageRepo struct{ v *view }

func (r messageRepo) Create(_ context.Context, message *domain.Message) error {
	defer r.v.enter()()

	message.ID = newID()
	message.CreatedAt = time.Now().UTC()
	d := r.v.d()
	d.messages = append(d.messages, *message)
	return nil
}

func (r messageRepo) GetByID(_ context.Context, id string) (*domain.Message, error) {
	defer r.v.enter()()

	for _, m := range r.v.d().messages {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, "message %s not found", id)
}

// ListByGroup walks the append-ordered log backwards.
func (r messageRepo) ListByGroup(_ context.Context, groupID, before string, limit int) ([]*domain.Message, error) {
	defer r.v.enter()()

	all := r.v.d().messages
	end := len(all)
	if before != "" {
		idx := slices.IndexFunc(all, func(m domain.Message) bool { return m.ID == before })
		if idx < 0 {
			return []*domain.Message{}, nil
		}
		end = idx
	}

	messages := make([]*domain.Message, 0)
	for i := end - 1; i >= 0; i-- {
		if all[i].GroupID != groupID {
			continue
		}
		m := all[i]
		messages = append(messages, &m)
		if limit > 0 && len(messages) == limit {
			break
		}
	}
	return messages, nil
}

func (r messageRepo) Delete(_ context.Context, id string) error {
	defer r.v.enter()()

	d := r.v.d()
	idx := slices.IndexFunc(d.messages, func(m domain.Message) bool { return m.ID == id })
	if idx < 0 {
		return domain.NewError(domain.KindNotFound, "message %s not found", id)
	}
	d.messages = slices.Delete(d.messages, idx, idx+1)
	return nil
}

func (r messageRepo) DeleteByGroup(_ context.Context, groupID string) error {
	defer r.v.enter()()

	d := r.v.d()
	d.messages = slices.DeleteFunc(d.messages, func(m domain.Message) bool { return m.GroupID == groupID })
	return nil
}
