// Package users is the credential store: persistence for tenant accounts.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, userName string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	SetActive(ctx context.Context, id int64, active bool) (*models.User, error)
	SetPlan(ctx context.Context, id int64, plan string, expiresAt *time.Time) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}
