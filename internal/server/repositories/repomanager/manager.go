package repomanager

import (
	"context"

	"github.com/dmitrijs2005/loadgate/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/targets"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/users"
)

// RepositoryManager vends the repositories services depend on.
type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Ping(ctx context.Context) error
	Users() users.Repository
	Jobs() jobs.Repository
	Targets() targets.Repository
	Close() error
}
