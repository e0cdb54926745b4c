package services

import (
	"fmt"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/dmitrijs2005/loadgate/internal/server/models"
)

// Authorize lets actor mutate a record owned by ownerID when actor is the
// owner or an administrator.
func Authorize(actor *models.User, ownerID int64) error {
	if actor == nil {
		return common.ErrUnauthenticated
	}
	if actor.ID == ownerID || actor.IsAdmin {
		return nil
	}
	return fmt.Errorf("%w: not the owner", common.ErrForbidden)
}
