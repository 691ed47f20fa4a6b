package memory

import (
	"context"
	"errors"
	"testing"

	"groupchat/internal/domain"
	"groupchat/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createGroup(t *testing.T, s *Store, name string, capacity int) *domain.Group {
	t.Helper()
	g := testutil.NewTestGroup(testutil.WithGroupName(name), testutil.WithCapacity(capacity), testutil.WithOwner("owner"))
	require.NoError(t, s.Groups().Create(context.Background(), g))
	return g
}

func TestStore_WithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits_on_success", func(t *testing.T) {
		s := NewStore()
		g := createGroup(t, s, "general", 5)

		err := s.WithTx(ctx, func(r domain.Repos) error {
			return r.Groups().AddMember(ctx, &domain.Membership{GroupID: g.ID, UserID: "u1"})
		})
		require.NoError(t, err)

		ok, err := s.Groups().IsMember(ctx, g.ID, "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rolls_back_on_error", func(t *testing.T) {
		s := NewStore()
		g := createGroup(t, s, "general", 5)
		boom := errors.New("boom")

		err := s.WithTx(ctx, func(r domain.Repos) error {
			require.NoError(t, r.Groups().AddMember(ctx, &domain.Membership{GroupID: g.ID, UserID: "u1"}))
			require.NoError(t, r.Messages().Create(ctx, testutil.NewTestMessage(g.ID, "u1", "hi")))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		count, err := s.Groups().CountMembers(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		msgs, err := s.Messages().ListByGroup(ctx, g.ID, "", 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("cancelled_context_is_unavailable", func(t *testing.T) {
		s := NewStore()
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := s.WithTx(cctx, func(domain.Repos) error { return nil })
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestGroupRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate_live_name", func(t *testing.T) {
		s := NewStore()
		createGroup(t, s, "general", 5)

		err := s.Groups().Create(ctx, testutil.NewTestGroup(testutil.WithGroupName("General")))
		assert.ErrorIs(t, err, domain.ErrDuplicateName)
	})

	t.Run("name_reusable_after_soft_delete", func(t *testing.T) {
		s := NewStore()
		g := createGroup(t, s, "general", 5)
		require.NoError(t, s.Groups().SoftDelete(ctx, g.ID, g.CreatedAt))

		_, err := s.Groups().GetByID(ctx, g.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		createGroup(t, s, "general", 5)
	})

	t.Run("list_visible_includes_open_and_own_private", func(t *testing.T) {
		s := NewStore()
		open := createGroup(t, s, "open", 5)
		mine := testutil.NewTestGroup(testutil.WithPrivate(), testutil.WithOwner("u1"))
		require.NoError(t, s.Groups().Create(ctx, mine))
		require.NoError(t, s.Groups().AddMember(ctx, &domain.Membership{GroupID: mine.ID, UserID: "u1", IsAdmin: true}))
		other := testutil.NewTestGroup(testutil.WithPrivate(), testutil.WithOwner("u2"))
		require.NoError(t, s.Groups().Create(ctx, other))

		groups, err := s.Groups().ListVisible(ctx, "u1", 10)
		require.NoError(t, err)

		ids := make([]string, 0, len(groups))
		for _, g := range groups {
			ids = append(ids, g.ID)
		}
		assert.ElementsMatch(t, []string{open.ID, mine.ID}, ids)
	})

	t.Run("add_member_twice", func(t *testing.T) {
		s := NewStore()
		g := createGroup(t, s, "general", 5)
		require.NoError(t, s.Groups().AddMember(ctx, &domain.Membership{GroupID: g.ID, UserID: "u1"}))

		err := s.Groups().AddMember(ctx, &domain.Membership{GroupID: g.ID, UserID: "u1"})
		assert.ErrorIs(t, err, domain.ErrAlreadyMember)
	})
}

func TestMessageRepo_ListByGroup(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	g := createGroup(t, s, "general", 5)
	h := createGroup(t, s, "other", 5)

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		m := testutil.NewTestMessage(g.ID, "u1", text)
		require.NoError(t, s.Messages().Create(ctx, m))
		ids = append(ids, m.ID)
	}
	require.NoError(t, s.Messages().Create(ctx, testutil.NewTestMessage(h.ID, "u1", "elsewhere")))

	t.Run("newest_first_with_limit", func(t *testing.T) {
		msgs, err := s.Messages().ListByGroup(ctx, g.ID, "", 2)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "three", msgs[0].Text)
		assert.Equal(t, "two", msgs[1].Text)
	})

	t.Run("before_cursor", func(t *testing.T) {
		msgs, err := s.Messages().ListByGroup(ctx, g.ID, ids[2], 10)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "two", msgs[0].Text)
	})
}

func TestStore_GetDisplayInfo(t *testing.T) {
	s := NewStore()
	s.PutUser(testutil.NewTestUserInfo("u1"))

	info, err := s.GetDisplayInfo(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Test u1", info.Name)
	assert.Equal(t, "u1@example.com", info.Email)

	_, err = s.GetDisplayInfo(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInviteRepo(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	g := createGroup(t, s, "general", 5)

	invite := testutil.NewTestInvite(g.ID, "u2", "owner")
	require.NoError(t, s.Invites().Create(ctx, invite))
	assert.NotEmpty(t, invite.ID)
	assert.False(t, invite.CreatedAt.IsZero())

	err := s.Invites().Create(ctx, testutil.NewTestInvite(g.ID, "u2", "someone-else"))
	assert.ErrorIs(t, err, domain.ErrInviteExists)

	got, err := s.Invites().Find(ctx, g.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, invite.ID, got.ID)
	assert.Equal(t, domain.InvitePending, got.Status)
}
