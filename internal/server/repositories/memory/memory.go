// Package memory holds process-local repository implementations used for
// development runs (DSN "memory://") and service tests. They honour the
// same contracts as the PostgreSQL repositories.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
	"github.com/dmitrijs2005/loadgate/internal/server/repositories/jobs"
)

// Users is an in-memory users.Repository.
type Users struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*models.User
	now    func() time.Time
}

func NewUsers() *Users {
	return &Users{byID: map[int64]*models.User{}, now: time.Now}
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func (r *Users) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if strings.EqualFold(u.UserName, user.UserName) {
			return nil, common.ErrUsernameTaken
		}
	}
	r.nextID++
	c := copyUser(user)
	c.ID = r.nextID
	c.CreatedAt = r.now().UTC()
	r.byID[c.ID] = c
	return copyUser(c), nil
}

func (r *Users) GetByUsername(ctx context.Context, userName string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if strings.EqualFold(u.UserName, userName) {
			return copyUser(u), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *Users) GetByID(ctx context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *Users) update(id int64, fn func(u *models.User)) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	fn(u)
	return copyUser(u), nil
}

func (r *Users) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	_, err := r.update(id, func(u *models.User) { u.PasswordHash = hash })
	return err
}

func (r *Users) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := r.update(id, func(u *models.User) { u.LastLogin = &at })
	return err
}

func (r *Users) SetActive(ctx context.Context, id int64, active bool) (*models.User, error) {
	return r.update(id, func(u *models.User) { u.IsActive = active })
}

func (r *Users) SetPlan(ctx context.Context, id int64, plan string, expiresAt *time.Time) (*models.User, error) {
	return r.update(id, func(u *models.User) {
		u.Plan = plan
		u.PlanExpiresAt = expiresAt
	})
}

// SetAdmin has no PostgreSQL counterpart; administrators are provisioned
// directly in the database.
func (r *Users) SetAdmin(id int64, admin bool) error {
	_, err := r.update(id, func(u *models.User) { u.IsAdmin = admin })
	return err
}

func (r *Users) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.RLock()
	all := make([]*models.User, 0, len(r.byID))
	for _, u := range r.byID {
		all = append(all, copyUser(u))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page(all, limit, offset), nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// Jobs is an in-memory jobs.Repository. One mutex makes CreateWithinLimit
// atomic the way the advisory lock does in PostgreSQL.
type Jobs struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*models.Job
	now    func() time.Time
}

func NewJobs() *Jobs {
	return &Jobs{byID: map[int64]*models.Job{}, now: time.Now}
}

func copyJob(j *models.Job) *models.Job {
	c := *j
	return &c
}

func (r *Jobs) countLive(userID int64, now time.Time) int {
	n := 0
	for _, j := range r.byID {
		if j.UserID == userID && j.Live(now) {
			n++
		}
	}
	return n
}

func (r *Jobs) CountLive(ctx context.Context, userID int64, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLive(userID, now), nil
}

func (r *Jobs) CreateWithinLimit(ctx context.Context, job *models.Job, max int, now time.Time) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.countLive(job.UserID, now) >= max {
		return nil, jobs.ErrLimitReached
	}
	r.nextID++
	c := copyJob(job)
	c.ID = r.nextID
	c.CreatedAt = r.now().UTC()
	r.byID[c.ID] = c
	return copyJob(c), nil
}

func (r *Jobs) GetByID(ctx context.Context, id int64) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyJob(j), nil
}

func (r *Jobs) MarkStopped(ctx context.Context, id int64, completedAt time.Time, note *string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.byID[id]
	if !ok || !j.Live(completedAt) {
		return nil, common.ErrConflict
	}
	j.Status = models.JobStatusStopped
	j.CompletedAt = &completedAt
	if note != nil {
		j.ErrorMessage = note
	}
	return copyJob(j), nil
}

func (r *Jobs) List(ctx context.Context, userID int64, now time.Time, filter jobs.ListFilter) ([]*models.Job, error) {
	r.mu.Lock()
	var out []*models.Job
	for _, j := range r.byID {
		if j.UserID != userID {
			continue
		}
		if filter.Status != nil && j.EffectiveStatus(now) != *filter.Status {
			continue
		}
		out = append(out, copyJob(j))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID > out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *Jobs) CompleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, j := range r.byID {
		if j.Status == models.JobStatusRunning && !j.ExpiresAt.After(now) {
			at := j.ExpiresAt
			j.Status = models.JobStatusCompleted
			j.CompletedAt = &at
			n++
		}
	}
	return n, nil
}

// Targets is an in-memory targets.Repository.
type Targets struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*models.Target
	now    func() time.Time
}

func NewTargets() *Targets {
	return &Targets{byID: map[int64]*models.Target{}, now: time.Now}
}

func copyTarget(t *models.Target) *models.Target {
	c := *t
	return &c
}

func (r *Targets) Create(ctx context.Context, target *models.Target) (*models.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.byID {
		if t.UserID == target.UserID && t.Host == target.Host {
			return nil, common.ErrConflict
		}
	}
	r.nextID++
	c := copyTarget(target)
	c.ID = r.nextID
	c.CreatedAt = r.now().UTC()
	r.byID[c.ID] = c
	return copyTarget(c), nil
}

func (r *Targets) GetByID(ctx context.Context, id int64) (*models.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyTarget(t), nil
}

func (r *Targets) FindVerified(ctx context.Context, userID int64, host string) (*models.Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.byID {
		if t.UserID == userID && t.Host == host && t.Verified() {
			return copyTarget(t), nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *Targets) ListByUser(ctx context.Context, userID int64) ([]*models.Target, error) {
	r.mu.RLock()
	var out []*models.Target
	for _, t := range r.byID {
		if t.UserID == userID {
			out = append(out, copyTarget(t))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Targets) MarkVerified(ctx context.Context, id int64, at time.Time) (*models.Target, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if t.VerifiedAt == nil {
		t.VerifiedAt = &at
	}
	return copyTarget(t), nil
}
