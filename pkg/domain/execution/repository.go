package execution

import (
	"context"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/pagination"
)

// Repository defines the interface for execution-record persistence.
type Repository interface {
	// Create persists a finalized execution record.
	Create(ctx context.Context, record *Record) error

	// GetByID retrieves an execution record by execution id.
	GetByID(ctx context.Context, id shared.ID) (*Record, error)

	// ListByWorkflow lists records for a workflow, newest first.
	ListByWorkflow(ctx context.Context, workflowID shared.ID, page pagination.Pagination) (pagination.Result[*Record], error)
}
