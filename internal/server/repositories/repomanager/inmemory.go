package repomanager

import (
	"context"

	"github.com/dmitrijs2005/loadgate/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/memory"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/targets"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/users"
)

// InMemoryDSN selects the in-memory manager instead of PostgreSQL.
const InMemoryDSN = "memory://"

// InMemoryRepositoryManager keeps everything in process memory. State is
// lost on restart.
type InMemoryRepositoryManager struct {
	users   *memory.Users
	jobs    *memory.Jobs
	targets *memory.Targets
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		users:   memory.NewUsers(),
		jobs:    memory.NewJobs(),
		targets: memory.NewTargets(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error { return nil }
func (m *InMemoryRepositoryManager) Ping(ctx context.Context) error          { return nil }
func (m *InMemoryRepositoryManager) Close() error                            { return nil }

func (m *InMemoryRepositoryManager) Users() users.Repository     { return m.users }
func (m *InMemoryRepositoryManager) Jobs() jobs.Repository       { return m.jobs }
func (m *InMemoryRepositoryManager) Targets() targets.Repository { return m.targets }

// New picks the manager for dsn.
func New(dsn string) (RepositoryManager, error) {
	if dsn == InMemoryDSN {
		return NewInMemoryRepositoryManager(), nil
	}
	m, err := NewPostgresRepositoryManager(dsn)
	if err != nil {
		return nil, err
	}
	return m, nil
}
