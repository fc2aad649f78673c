// Package usage holds billing-period usage types shared between the
// execution admission path and the counter store.
package usage

import (
	"context"
	"fmt"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

// Check is the outcome of comparing a user's current usage against
// their plan limit.
type Check struct {
	Exceeded     bool    `json:"exceeded"`
	CurrentUsage float64 `json:"currentUsage"`
	Limit        float64 `json:"limit"`
	Message      string  `json:"message,omitempty"`
}

// NewCheck derives a Check from raw counter values. A limit of zero or
// below means the plan is unmetered.
func NewCheck(current, limit float64) Check {
	c := Check{CurrentUsage: current, Limit: limit}
	if limit > 0 && current >= limit {
		c.Exceeded = true
		c.Message = fmt.Sprintf("usage limit of %.2f reached (current: %.2f)", limit, current)
	}
	return c
}

// Store tracks per-user execution counters for the current billing
// period.
type Store interface {
	// Increment adds cost to the user's running total and returns the
	// new value.
	Increment(ctx context.Context, userID shared.ID, cost float64) (float64, error)
	Current(ctx context.Context, userID shared.ID) (float64, error)
	Reset(ctx context.Context, userID shared.ID) error
}
