package knowledge

import (
	"context"
	"time"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/pagination"
)

// Filter narrows document listings.
type Filter struct {
	KnowledgeBaseID *shared.ID
	UserID          *shared.ID
	Status          *ProcessingStatus
	Search          string
}

// Repository persists documents.
type Repository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id shared.ID) (*Document, error)
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Document], error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id shared.ID) error

	// ListStuckProcessing returns documents that entered processing
	// before the cutoff and never reached a terminal status.
	ListStuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]*Document, error)
}
