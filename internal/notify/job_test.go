package notify

import (
	"strings"
	"testing"

	"groupchat/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageJob(t *testing.T) {
	group := &domain.Group{ID: "g1", Name: "Hikers"}
	msg := &domain.Message{ID: "m1", GroupID: "g1", UserID: "u1", Text: "hello"}

	job := NewMessageJob(group, msg, &domain.UserInfo{ID: "u1", Name: "Ursula"}, []string{"u2", "u3"})
	assert.Equal(t, KindNewMessage, job.Kind)
	assert.Equal(t, "Ursula", job.Title)
	assert.Equal(t, "hello", job.Body)
	assert.Equal(t, []string{"u2", "u3"}, job.Recipients)
	assert.Equal(t, "g1", job.Data["group_id"])
	assert.Equal(t, "Hikers", job.Data["group_name"])
	assert.Equal(t, "u1", job.Data["sender_id"])
	assert.NotZero(t, job.Timestamp)

	job = NewMessageJob(nil, msg, nil, []string{"u2"})
	assert.Equal(t, "u1", job.Title)
	assert.Empty(t, job.Data["group_name"])
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	exact := strings.Repeat("ü", previewLength)
	assert.Equal(t, exact, preview(exact))

	long := strings.Repeat("ü", previewLength+5)
	got := preview(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, previewLength+3, len([]rune(got)))
}

func TestGroupJobs(t *testing.T) {
	group := &domain.Group{ID: "g1", Name: "Hikers"}

	job := GroupInviteJob(&domain.Invite{ID: "i1", GroupID: "g1", UserID: "u2", InviterID: "u1"}, group)
	assert.Equal(t, KindGroupInvite, job.Kind)
	assert.Equal(t, []string{"u2"}, job.Recipients)
	assert.Contains(t, job.Body, "Hikers")
	assert.Equal(t, "i1", job.Data["invite_id"])

	job = RequestAcceptedJob(group, "u3")
	assert.Equal(t, KindRequestAccepted, job.Kind)
	assert.Equal(t, []string{"u3"}, job.Recipients)
}
