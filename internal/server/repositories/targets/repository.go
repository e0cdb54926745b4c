// Package targets persists hosts tenants registered for load testing and
// their ownership verification state.
package targets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, target *models.Target) (*models.Target, error)
	GetByID(ctx context.Context, id int64) (*models.Target, error)
	// FindVerified returns the verified target of userID for host, or
	// common.ErrNotFound.
	FindVerified(ctx context.Context, userID int64, host string) (*models.Target, error)
	ListByUser(ctx context.Context, userID int64) ([]*models.Target, error)
	MarkVerified(ctx context.Context, id int64, at time.Time) (*models.Target, error)
}
