// Package repomanager wires PostgreSQL-backed repositories over one
// connection pool and runs the embedded goose migrations.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/loadgate/internal/server/migrations"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/targets"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct {
	db      *sql.DB
	users   *users.PostgresRepository
	jobs    *jobs.PostgresRepository
	targets *targets.PostgresRepository
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// NewPostgresRepositoryManager opens a pgx connection pool for dsn.
// The connection is not checked; call Ping.
func NewPostgresRepositoryManager(dsn string) (*PostgresRepositoryManager, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewPostgresRepositoryManagerFromDB(db), nil
}

// NewPostgresRepositoryManagerFromDB wraps an existing pool.
func NewPostgresRepositoryManagerFromDB(db *sql.DB) *PostgresRepositoryManager {
	return &PostgresRepositoryManager{
		db:      db,
		users:   users.NewPostgresRepository(db),
		jobs:    jobs.NewPostgresRepository(db),
		targets: targets.NewPostgresRepository(db),
	}
}

func (m *PostgresRepositoryManager) Users() users.Repository     { return m.users }
func (m *PostgresRepositoryManager) Jobs() jobs.Repository       { return m.jobs }
func (m *PostgresRepositoryManager) Targets() targets.Repository { return m.targets }

func (m *PostgresRepositoryManager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *PostgresRepositoryManager) Close() error {
	return m.db.Close()
}

// RunMigrations applies the embedded goose migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, ".")
}
