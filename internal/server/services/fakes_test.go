package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/logging"
	"github.com/dmitrijs2005/loadgate/internal/server/archive"
	"github.com/dmitrijs2005/loadgate/internal/server/auth"
	"github.com/dmitrijs2005/loadgate/internal/server/executor"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/memory"
	"github.com/dmitrijs2005/loadgate/internal/server/throttle"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeExecutor struct {
	mu         sync.Mutex
	startCalls []executor.StartRequest
	stopCalls  []string
	startErr   error
	stopErr    error
	noID       bool
	seq        int
}

func (f *fakeExecutor) Start(ctx context.Context, req executor.StartRequest) (*executor.StartResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = append(f.startCalls, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.seq++
	body := fmt.Sprintf(`{"id":"run-%d"}`, f.seq)
	if f.noID {
		return &executor.StartResult{Body: "accepted"}, nil
	}
	id := fmt.Sprintf("run-%d", f.seq)
	return &executor.StartResult{Body: body, ExternalID: &id}, nil
}

func (f *fakeExecutor) Stop(ctx context.Context, externalID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls = append(f.stopCalls, externalID)
	if f.stopErr != nil {
		return "", f.stopErr
	}
	return "stopped " + externalID, nil
}

type fakeArchive struct {
	mu    sync.Mutex
	saved []archive.Event
	err   error
}

func (f *fakeArchive) Save(ctx context.Context, userID, jobID int64, event archive.Event, body string, at time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, event)
	if f.err != nil {
		return "", f.err
	}
	return archive.ObjectKey(userID, jobID, event, at), nil
}

// racingJobs reports ErrLimitReached on insert as if a concurrent start
// took the last slot after admission.
type racingJobs struct {
	*memory.Jobs
}

func (r racingJobs) CreateWithinLimit(ctx context.Context, job *models.Job, max int, now time.Time) (*models.Job, error) {
	return nil, jobs.ErrLimitReached
}

type failingJobs struct {
	*memory.Jobs
	err error
}

func (r failingJobs) CreateWithinLimit(ctx context.Context, job *models.Job, max int, now time.Time) (*models.Job, error) {
	return nil, r.err
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type jobFixture struct {
	users   *memory.Users
	jobs    *memory.Jobs
	targets *memory.Targets
	exec    *fakeExecutor
	archive *fakeArchive
	clock   *clock
	svc     *JobService
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	f := &jobFixture{
		users:   memory.NewUsers(),
		jobs:    memory.NewJobs(),
		targets: memory.NewTargets(),
		exec:    &fakeExecutor{},
		archive: &fakeArchive{},
		clock:   newClock(),
	}
	f.svc = NewJobService(NewAdmission(f.jobs, f.targets), f.jobs, f.exec, f.archive, logging.Discard(), time.Second)
	f.svc.now = f.clock.Now
	return f
}

// addUser creates an active user on plan with a verified target host.
func (f *jobFixture) addUser(t *testing.T, name, plan string, expiresAt *time.Time, host string) *models.User {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.Create(ctx, &models.User{UserName: name, PasswordHash: auth.LegacyHash("x"), IsActive: true})
	require.NoError(t, err)
	u, err = f.users.SetPlan(ctx, u.ID, plan, expiresAt)
	require.NoError(t, err)

	if host != "" {
		tg, err := f.targets.Create(ctx, &models.Target{UserID: u.ID, Host: host, Token: "tok"})
		require.NoError(t, err)
		_, err = f.targets.MarkVerified(ctx, tg.ID, f.clock.Now())
		require.NoError(t, err)
	}
	return u
}

func newTestUserService(t *testing.T, repo *memory.Users, jobsRepo LiveCounter, limiter throttle.Limiter) *UserService {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	if limiter == nil {
		limiter = throttle.NewMemoryLimiter(10, 5*time.Minute)
	}
	if jobsRepo == nil {
		jobsRepo = memory.NewJobs()
	}
	return NewUserService(repo, jobsRepo, auth.NewHasher(bcrypt.MinCost), auth.DefaultPolicy, tokens, limiter, logging.Discard())
}

func jobsFilter() jobs.ListFilter {
	return jobs.ListFilter{Limit: 100}
}
