package app

import (
	"context"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/usage"
)

// StoreUsageChecker answers admission quota checks from the usage
// counter store against a flat per-user limit. A limit of zero or
// below disables metering.
type StoreUsageChecker struct {
	store usage.Store
	limit float64
}

// NewStoreUsageChecker creates a checker with a flat limit.
func NewStoreUsageChecker(store usage.Store, limit float64) *StoreUsageChecker {
	return &StoreUsageChecker{store: store, limit: limit}
}

var _ UsageChecker = (*StoreUsageChecker)(nil)

// Check implements UsageChecker.
func (c *StoreUsageChecker) Check(ctx context.Context, userID shared.ID) (usage.Check, error) {
	current, err := c.store.Current(ctx, userID)
	if err != nil {
		return usage.Check{}, err
	}
	return usage.NewCheck(current, c.limit), nil
}
