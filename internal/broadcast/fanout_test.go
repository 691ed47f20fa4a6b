package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDeliverer struct {
	mu       sync.Mutex
	groups   []string
	payloads [][]byte
	evicted  []string
}

func (d *recordingDeliverer) Deliver(groupID string, payload []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups = append(d.groups, groupID)
	d.payloads = append(d.payloads, payload)
	return 2
}

func (d *recordingDeliverer) Evict(groupID, userID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evicted = append(d.evicted, groupID+"/"+userID)
	return 1
}

func (d *recordingDeliverer) EvictGroup(groupID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.evicted = append(d.evicted, groupID+"/*")
	return 2
}

var _ service.Broadcaster = (*Fanout)(nil)

func TestFanout_BroadcastMessage(t *testing.T) {
	d := &recordingDeliverer{}
	f := NewFanout(d)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f.BroadcastMessage(context.Background(),
		&domain.Message{ID: "m1", GroupID: "g1", UserID: "u1", Text: "hi", CreatedAt: created},
		&domain.UserInfo{ID: "u1", Name: "Ursula", Email: "u@example.com"})

	require.Len(t, d.payloads, 1)
	assert.Equal(t, "g1", d.groups[0])

	var got map[string]any
	require.NoError(t, json.Unmarshal(d.payloads[0], &got))
	assert.Equal(t, "new_message", got["type"])
	assert.Equal(t, "m1", got["id"])
	assert.Equal(t, "g1", got["group_id"])
	assert.Equal(t, "u1", got["user_id"])
	assert.Equal(t, "hi", got["text"])
	assert.Equal(t, "2026-03-01T12:00:00Z", got["created_at"])
	assert.Equal(t, map[string]any{"id": "u1", "name": "Ursula", "email": "u@example.com"}, got["sender"])
}

func TestFanout_BroadcastMessage_NoSender(t *testing.T) {
	d := &recordingDeliverer{}
	NewFanout(d).BroadcastMessage(context.Background(), &domain.Message{ID: "m1", GroupID: "g1", UserID: "u1", Text: "hi"}, nil)

	var got NewMessageEvent
	require.NoError(t, json.Unmarshal(d.payloads[0], &got))
	assert.Equal(t, Sender{ID: "u1", Name: "u1"}, got.Sender)
}

func TestFanout_OtherEvents(t *testing.T) {
	d := &recordingDeliverer{}
	f := NewFanout(d)
	ctx := context.Background()

	f.BroadcastDeletion(ctx, "g1", "m9")
	f.BroadcastMembership(ctx, service.EventMemberJoined, "g1", "u2", 3)

	require.Len(t, d.payloads, 2)
	assert.JSONEq(t, `{"type":"message_deleted","group_id":"g1","message_id":"m9"}`, string(d.payloads[0]))
	assert.JSONEq(t, `{"type":"member_joined","group_id":"g1","user_id":"u2","member_count":3}`, string(d.payloads[1]))
}

func TestFanout_DetachMember(t *testing.T) {
	d := &recordingDeliverer{}
	f := NewFanout(d)
	ctx := context.Background()

	f.BroadcastMembership(ctx, service.EventMemberLeft, "g1", "u2", 1)
	f.DetachMember(ctx, "g1", "u2")

	require.Len(t, d.payloads, 1)
	assert.JSONEq(t, `{"type":"member_left","group_id":"g1","user_id":"u2","member_count":1}`, string(d.payloads[0]))
	assert.Equal(t, []string{"g1/u2"}, d.evicted)
}

func TestFanout_BroadcastGroupDeleted(t *testing.T) {
	d := &recordingDeliverer{}
	NewFanout(d).BroadcastGroupDeleted(context.Background(), "g1")

	require.Len(t, d.payloads, 1)
	assert.JSONEq(t, `{"type":"group_deleted","group_id":"g1"}`, string(d.payloads[0]))
	assert.Equal(t, []string{"g1/*"}, d.evicted)
}
