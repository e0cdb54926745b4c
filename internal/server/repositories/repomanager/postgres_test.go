package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestManager_ImplementsInterface(t *testing.T) {
	db, _ := newDB(t)
	var m RepositoryManager = NewPostgresRepositoryManagerFromDB(db)

	assert.NotNil(t, m.Users())
	assert.NotNil(t, m.Jobs())
	assert.NotNil(t, m.Targets())
}

func TestNewPostgresRepositoryManager_UsesPgxDriver(t *testing.T) {
	db, _ := newDB(t)

	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })

	var gotDriver, gotDSN string
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	}

	m, err := NewPostgresRepositoryManager("postgres://x")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "pgx", gotDriver)
	assert.Equal(t, "postgres://x", gotDSN)
}

func TestNewPostgresRepositoryManager_OpenError(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("bad dsn") }

	_, err := NewPostgresRepositoryManager("::")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad dsn")
}

func TestPing(t *testing.T) {
	db, mock := newDB(t)
	mock.ExpectPing()

	require.NoError(t, NewPostgresRepositoryManagerFromDB(db).Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations(t *testing.T) {
	db, _ := newDB(t)

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	t.Run("success", func(t *testing.T) {
		gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
			if dir != "." {
				return errors.New("unexpected dir")
			}
			return nil
		}
		require.NoError(t, NewPostgresRepositoryManagerFromDB(db).RunMigrations(context.Background()))
	})

	t.Run("error", func(t *testing.T) {
		gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
			return errors.New("boom")
		}
		require.EqualError(t, NewPostgresRepositoryManagerFromDB(db).RunMigrations(context.Background()), "boom")
	})
}

func TestNew_InMemory(t *testing.T) {
	m, err := New(InMemoryDSN)
	require.NoError(t, err)
	_, ok := m.(*InMemoryRepositoryManager)
	assert.True(t, ok)
	assert.NoError(t, m.RunMigrations(context.Background()))
	assert.NoError(t, m.Ping(context.Background()))
	assert.NotNil(t, m.Users())
	assert.NotNil(t, m.Jobs())
	assert.NotNil(t, m.Targets())
	assert.NoError(t, m.Close())
}

func TestNew_Postgres(t *testing.T) {
	db, _ := newDB(t)

	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(driver, dsn string) (*sql.DB, error) { return db, nil }

	m, err := New("postgres://x")
	require.NoError(t, err)
	_, ok := m.(*PostgresRepositoryManager)
	assert.True(t, ok)

	sqlOpen = func(driver, dsn string) (*sql.DB, error) { return nil, errors.New("bad dsn") }
	m, err = New("postgres://x")
	assert.Error(t, err)
	assert.Nil(t, m)
}
