package envvar

import (
	"context"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

// Repository defines the interface for environment-variable persistence.
type Repository interface {
	// GetByUser loads the user's variable set. Implementations return
	// an empty set, not an error, when the user has no variables.
	GetByUser(ctx context.Context, userID shared.ID) (*Set, error)

	// Save upserts the user's variable set.
	Save(ctx context.Context, set *Set) error
}
