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

var groupRowColumns = []string{"id", "name", "type", "max_members", "owner_id", "created_at"}

func TestGroupRepository_Create(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO groups (name, type, max_members, owner_id)`)

	t.Run("successful_creation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		createdAt := time.Now()
		mock.ExpectQuery(insert).
			WithArgs("general", "open", 10, "u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("g1", createdAt))

		group := testutil.NewTestGroup(testutil.WithGroupName("general"), testutil.WithOwner("u1"))
		err = NewGroupRepository(db).Create(context.Background(), group)

		require.NoError(t, err)
		assert.Equal(t, "g1", group.ID)
		assert.Equal(t, createdAt, group.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate_name", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(insert).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "groups_name_live_idx"})

		group := testutil.NewTestGroup(testutil.WithGroupName("general"), testutil.WithOwner("u1"))
		err = NewGroupRepository(db).Create(context.Background(), group)

		assert.ErrorIs(t, err, domain.ErrDuplicateName)
	})
}

func TestGroupRepository_LockByID(t *testing.T) {
	t.Run("selects_for_update", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`WHERE id = \$1 AND deleted_at IS NULL\s+FOR UPDATE`).
			WithArgs("g1").
			WillReturnRows(sqlmock.NewRows(groupRowColumns).
				AddRow("g1", "general", "private", 2, "u1", time.Now()))

		group, err := NewGroupRepository(db).LockByID(context.Background(), "g1")

		require.NoError(t, err)
		assert.Equal(t, domain.GroupPrivate, group.Type)
		assert.Equal(t, 2, group.Capacity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not_found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(`FOR UPDATE`).WillReturnError(sql.ErrNoRows)

		_, err = NewGroupRepository(db).LockByID(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestGroupRepository_Members(t *testing.T) {
	t.Run("add_existing_member", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO group_members (group_id, user_id, is_admin)`)).
			WithArgs("g1", "u2", false).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "group_members_pkey"})

		err = NewGroupRepository(db).AddMember(context.Background(), &domain.Membership{GroupID: "g1", UserID: "u2"})
		assert.ErrorIs(t, err, domain.ErrAlreadyMember)
	})

	t.Run("remove_reports_whether_row_existed", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		del := regexp.QuoteMeta(`DELETE FROM group_members`)
		mock.ExpectExec(del).WithArgs("g1", "u2").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(del).WithArgs("g1", "u3").WillReturnResult(sqlmock.NewResult(0, 0))

		repo := NewGroupRepository(db)
		removed, err := repo.RemoveMember(context.Background(), "g1", "u2")
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = repo.RemoveMember(context.Background(), "g1", "u3")
		require.NoError(t, err)
		assert.False(t, removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("is_member", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(`)).
			WithArgs("g1", "u1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := NewGroupRepository(db).IsMember(context.Background(), "g1", "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("set_admin_on_non_member", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE group_members`)).
			WithArgs("g1", "u9", true).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = NewGroupRepository(db).SetAdmin(context.Background(), "g1", "u9", true)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestGroupRepository_SoftDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`SET deleted_at = $2`)).
		WithArgs("g1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewGroupRepository(db).SoftDelete(context.Background(), "g1", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
