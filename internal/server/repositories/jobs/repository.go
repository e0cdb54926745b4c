// Package jobs persists load-test job records.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/server/models"
)

// ErrLimitReached is returned by CreateWithinLimit when the owner already
// has max live jobs at insert time.
var ErrLimitReached = errors.New("concurrent job limit reached")

// ListFilter narrows List results. A nil Status lists every job. Status is
// compared against the effective status, so "running" never returns a
// lapsed job and "completed" includes one.
type ListFilter struct {
	Status *models.JobStatus
	Limit  int
	Offset int
}

type Repository interface {
	// CountLive counts running jobs of userID whose expires_at is after now.
	CountLive(ctx context.Context, userID int64, now time.Time) (int, error)
	// CreateWithinLimit inserts job only while the owner has fewer than max
	// live jobs, atomically with respect to other CreateWithinLimit calls
	// for the same owner.
	CreateWithinLimit(ctx context.Context, job *models.Job, max int, now time.Time) (*models.Job, error)
	GetByID(ctx context.Context, id int64) (*models.Job, error)
	// MarkStopped moves a live job to stopped. It returns
	// common.ErrConflict when the row is no longer running or has lapsed.
	MarkStopped(ctx context.Context, id int64, completedAt time.Time, note *string) (*models.Job, error)
	List(ctx context.Context, userID int64, now time.Time, filter ListFilter) ([]*models.Job, error)
	// CompleteExpired marks every lapsed running job completed.
	CompleteExpired(ctx context.Context, now time.Time) (int64, error)
}
