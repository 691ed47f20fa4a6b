package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteRepository_Create(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO group_invites (group_id, user_id, inviter_id, status)`)

	t.Run("successful_creation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		now := time.Now()
		mock.ExpectQuery(insert).
			WithArgs("g1", "u2", "u1", "pending").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("i1", now, now))

		invite := testutil.NewTestInvite("g1", "u2", "u1")
		require.NoError(t, NewInviteRepository(db).Create(context.Background(), invite))
		assert.Equal(t, "i1", invite.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pair_already_invited", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(insert).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "group_invites_group_user_key"})

		invite := testutil.NewTestInvite("g1", "u2", "u1")
		err = NewInviteRepository(db).Create(context.Background(), invite)
		assert.ErrorIs(t, err, domain.ErrInviteExists)
	})
}

func TestInviteRepository_Find(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		now := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta(`FROM group_invites WHERE group_id = $1 AND user_id = $2`)).
			WithArgs("g1", "u2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "user_id", "inviter_id", "status", "created_at", "updated_at", "updated_by"}).
				AddRow("i1", "g1", "u2", "u1", "revoked", now, now, "u1"))

		invite, err := NewInviteRepository(db).Find(context.Background(), "g1", "u2")
		require.NoError(t, err)
		assert.Equal(t, domain.InviteRevoked, invite.Status)
		assert.Equal(t, "u1", invite.UpdatedBy)
	})

	t.Run("not_found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`FROM group_invites`)).WillReturnError(sql.ErrNoRows)

		_, err = NewInviteRepository(db).Find(context.Background(), "g1", "u2")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestInviteRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE group_invites`)).
		WithArgs("i1", "accepted", "u2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewInviteRepository(db).UpdateStatus(context.Background(), "i1", domain.InviteAccepted, "u2", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
