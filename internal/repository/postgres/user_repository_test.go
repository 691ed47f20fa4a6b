package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"groupchat/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserDirectory_GetDisplayInfo(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT id, display_name, email`)

	t.Run("found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(query).
			WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "email"}).
				AddRow("u1", "Ada", "ada@example.com"))

		info, err := NewUserDirectory(db).GetDisplayInfo(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, &domain.UserInfo{ID: "u1", Name: "Ada", Email: "ada@example.com"}, info)
	})

	t.Run("not_found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(query).WillReturnError(sql.ErrNoRows)

		_, err = NewUserDirectory(db).GetDisplayInfo(context.Background(), "u1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
