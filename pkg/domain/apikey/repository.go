package apikey

import (
	"context"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

// Repository persists API keys.
type Repository interface {
	Create(ctx context.Context, key *Key) error
	GetByID(ctx context.Context, id shared.ID) (*Key, error)

	// ListByPrefix returns the candidate keys sharing a lookup prefix.
	// Callers verify the raw key against each candidate's hash.
	ListByPrefix(ctx context.Context, prefix string) ([]*Key, error)

	ListByUser(ctx context.Context, userID shared.ID) ([]*Key, error)
	RecordUsage(ctx context.Context, id shared.ID) error
	Delete(ctx context.Context, id shared.ID) error
}
