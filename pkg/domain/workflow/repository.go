package workflow

import (
	"context"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/pagination"
)

// Filter represents filter options for listing workflows.
type Filter struct {
	UserID     *shared.ID
	IsDeployed *bool
	Scheduled  *bool
	Search     string
}

// Repository defines the interface for workflow persistence.
type Repository interface {
	// Create persists a new workflow.
	Create(ctx context.Context, workflow *Workflow) error

	// GetByID retrieves a workflow with both graph snapshots.
	GetByID(ctx context.Context, id shared.ID) (*Workflow, error)

	// List lists workflows with filters and pagination.
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Workflow], error)

	// ListScheduled lists deployed workflows that have a cron schedule.
	ListScheduled(ctx context.Context) ([]*Workflow, error)

	// Update updates a workflow, including snapshots and deployment state.
	Update(ctx context.Context, workflow *Workflow) error

	// IncrementRunCount atomically increments the run counter. Safe to
	// call from concurrent executions of different workflows.
	IncrementRunCount(ctx context.Context, id shared.ID) error

	// Delete deletes a workflow.
	Delete(ctx context.Context, id shared.ID) error
}
