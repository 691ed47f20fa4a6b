package testutil

import (
	"context"
	"sync"

	"groupchat/internal/domain"
)

// BroadcastCall records a membership event pushed to a group
type BroadcastCall struct {
	Event       string
	GroupID     string
	UserID      string
	MemberCount int
}

// RecordingBroadcaster records everything the services broadcast
type RecordingBroadcaster struct {
	mu sync.Mutex

	Messages   []*domain.Message
	Senders    []*domain.UserInfo
	Deletions  []string
	Membership []BroadcastCall
	// Detached holds "groupID/userID" pairs; DeletedGroups holds group IDs.
	Detached      []string
	DeletedGroups []string
}

func NewRecordingBroadcaster() *RecordingBroadcaster {
	return &RecordingBroadcaster{}
}

func (b *RecordingBroadcaster) BroadcastMessage(_ context.Context, msg *domain.Message, sender *domain.UserInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Messages = append(b.Messages, msg)
	b.Senders = append(b.Senders, sender)
}

func (b *RecordingBroadcaster) BroadcastDeletion(_ context.Context, _ string, messageID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deletions = append(b.Deletions, messageID)
}

func (b *RecordingBroadcaster) BroadcastMembership(_ context.Context, event, groupID, userID string, memberCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Membership = append(b.Membership, BroadcastCall{Event: event, GroupID: groupID, UserID: userID, MemberCount: memberCount})
}

func (b *RecordingBroadcaster) BroadcastGroupDeleted(_ context.Context, groupID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DeletedGroups = append(b.DeletedGroups, groupID)
}

func (b *RecordingBroadcaster) DetachMember(_ context.Context, groupID, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Detached = append(b.Detached, groupID+"/"+userID)
}

// DetachedMembers returns a copy of the recorded detachments
func (b *RecordingBroadcaster) DetachedMembers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.Detached...)
}

// MembershipCalls returns a copy of the recorded membership events
func (b *RecordingBroadcaster) MembershipCalls() []BroadcastCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BroadcastCall{}, b.Membership...)
}

// MessageCount returns the number of broadcast messages
func (b *RecordingBroadcaster) MessageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Messages)
}

// NotifyCall records one push notification request
type NotifyCall struct {
	Kind       string
	GroupID    string
	GroupName  string
	Recipients []string
}

// RecordingNotifier records push notification requests
type RecordingNotifier struct {
	mu    sync.Mutex
	Calls []NotifyCall
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) record(call NotifyCall) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, call)
}

func (n *RecordingNotifier) NotifyNewMessage(_ context.Context, group *domain.Group, msg *domain.Message, _ *domain.UserInfo, recipients []string) {
	call := NotifyCall{Kind: "new_message", GroupID: msg.GroupID, Recipients: append([]string{}, recipients...)}
	if group != nil {
		call.GroupName = group.Name
	}
	n.record(call)
}

func (n *RecordingNotifier) NotifyGroupInvite(_ context.Context, invite *domain.Invite, _ *domain.Group) {
	n.record(NotifyCall{Kind: "group_invite", GroupID: invite.GroupID, Recipients: []string{invite.UserID}})
}

func (n *RecordingNotifier) NotifyRequestAccepted(_ context.Context, group *domain.Group, userID string) {
	n.record(NotifyCall{Kind: "request_accepted", GroupID: group.ID, Recipients: []string{userID}})
}

// GetCalls returns a copy of the recorded calls
func (n *RecordingNotifier) GetCalls() []NotifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotifyCall{}, n.Calls...)
}

// MockTokenVerifier maps fixed tokens to user IDs
type MockTokenVerifier struct {
	mu     sync.RWMutex
	tokens map[string]string

	VerifyFunc func(ctx context.Context, token string) (string, error)
}

func NewMockTokenVerifier() *MockTokenVerifier {
	return &MockTokenVerifier{tokens: make(map[string]string)}
}

// AddToken registers token for userID
func (m *MockTokenVerifier) AddToken(token, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = userID
}

func (m *MockTokenVerifier) Verify(ctx context.Context, token string) (string, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, ok := m.tokens[token]
	if !ok {
		return "", domain.NewError(domain.KindAuth, "invalid token")
	}
	return userID, nil
}
