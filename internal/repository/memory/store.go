// Package memory implements domain.Store in process memory. It backs the
// STORAGE_DRIVER=memory development mode and the service tests.
package memory

import (
	"context"
	"maps"
	"sync"

	"groupchat/internal/domain"

	"github.com/google/uuid"
)

type data struct {
	groups       map[string]domain.Group
	members      map[string]map[string]domain.Membership
	invites      map[string]domain.Invite
	joinRequests map[string]domain.JoinRequest
	messages     []domain.Message
	users        map[string]domain.UserInfo
}

func newData() *data {
	return &data{
		groups:       make(map[string]domain.Group),
		members:      make(map[string]map[string]domain.Membership),
		invites:      make(map[string]domain.Invite),
		joinRequests: make(map[string]domain.JoinRequest),
		users:        make(map[string]domain.UserInfo),
	}
}

func (d *data) clone() *data {
	c := &data{
		groups:       maps.Clone(d.groups),
		members:      make(map[string]map[string]domain.Membership, len(d.members)),
		invites:      maps.Clone(d.invites),
		joinRequests: maps.Clone(d.joinRequests),
		messages:     append([]domain.Message(nil), d.messages...),
		users:        maps.Clone(d.users),
	}
	for id, set := range d.members {
		c.members[id] = maps.Clone(set)
	}
	return c
}

// Store serializes every transaction behind one mutex, which makes the
// capacity checks trivially linearizable.
type Store struct {
	mu   sync.Mutex
	data *data
	// unlocked is handed to transaction bodies that already hold mu.
	unlocked *view
	locked   *view
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	s := &Store{data: newData()}
	s.unlocked = &view{store: s}
	s.locked = &view{store: s, lock: true}
	return s
}

// view binds repositories to the store, taking the mutex per call when lock is set.
type view struct {
	store *Store
	lock  bool
}

func (v *view) enter() func() {
	if !v.lock {
		return func() {}
	}
	v.store.mu.Lock()
	return v.store.mu.Unlock
}

func (v *view) d() *data { return v.store.data }

func (s *Store) Groups() domain.GroupRepository             { return groupRepo{s.locked} }
func (s *Store) Invites() domain.InviteRepository           { return inviteRepo{s.locked} }
func (s *Store) JoinRequests() domain.JoinRequestRepository { return joinRequestRepo{s.locked} }
func (s *Store) Messages() domain.MessageRepository         { return messageRepo{s.locked} }

type txRepos struct{ v *view }

func (r txRepos) Groups() domain.GroupRepository             { return groupRepo{r.v} }
func (r txRepos) Invites() domain.InviteRepository           { return inviteRepo{r.v} }
func (r txRepos) JoinRequests() domain.JoinRequestRepository { return joinRequestRepo{r.v} }
func (r txRepos) Messages() domain.MessageRepository         { return messageRepo{r.v} }

// WithTx runs fn with exclusive access to the store. Changes made by fn are
// discarded when it returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(domain.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.KindUnavailable, err, "transaction not started")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(txRepos{s.unlocked}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// PutUser registers display info for GetDisplayInfo.
func (s *Store) PutUser(info domain.UserInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[info.ID] = info
}

// GetDisplayInfo implements domain.UserDirectory.
func (s *Store) GetDisplayInfo(_ context.Context, userID string) (*domain.UserInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.data.users[userID]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "user %s not found", userID)
	}
	return &info, nil
}

func newID() string {
	return uuid.NewString()
}
