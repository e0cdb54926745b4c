package targets

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "user_id", "host", "token", "verified_at", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+targets\s*\(user_id,\s*host,\s*token\)`).
		WithArgs(int64(7), "app.example.com", "tok").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(1), int64(7), "app.example.com", "tok", nil, time.Now()))

	got, err := repo.Create(context.Background(), &models.Target{UserID: 7, Host: "app.example.com", Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.False(t, got.Verified())
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+targets`).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	_, err := repo.Create(context.Background(), &models.Target{UserID: 7, Host: "app.example.com", Token: "tok"})
	require.ErrorIs(t, err, common.ErrConflict)
}

func TestFindVerified(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Now()

	mock.ExpectQuery(`(?s)FROM\s+targets\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+host\s*=\s*\$2\s+AND\s+verified_at\s+IS\s+NOT\s+NULL`).
		WithArgs(int64(7), "app.example.com").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(1), int64(7), "app.example.com", "tok", at, at))

	got, err := repo.FindVerified(context.Background(), 7, "app.example.com")
	require.NoError(t, err)
	assert.True(t, got.Verified())

	mock.ExpectQuery(`FROM\s+targets`).WithArgs(int64(7), "other.example.com").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindVerified(context.Background(), 7, "other.example.com")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestListByUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+targets\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+host`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), int64(7), "a.example.com", "t1", nil, time.Now()).
			AddRow(int64(2), int64(7), "b.example.com", "t2", time.Now(), time.Now()))

	got, err := repo.ListByUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].Verified())
}

func TestMarkVerified(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Now()

	mock.ExpectQuery(`UPDATE\s+targets\s+SET\s+verified_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(int64(1), at).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(1), int64(7), "a.example.com", "t1", at, at))

	got, err := repo.MarkVerified(context.Background(), 1, at)
	require.NoError(t, err)
	assert.True(t, got.Verified())

	mock.ExpectQuery(`UPDATE\s+targets`).WithArgs(int64(2), at).WillReturnError(sql.ErrNoRows)
	_, err = repo.MarkVerified(context.Background(), 2, at)
	require.ErrorIs(t, err, common.ErrNotFound)
}
