package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowdeckio/api/pkg/domain/shared"
	"github.com/flowdeckio/api/pkg/domain/usage"
)

// UsageStore keeps per-user execution counters in Redis, one key per
// user per billing month. Keys expire on their own well after the
// month closes, so a missed reset never leaks memory.
type UsageStore struct {
	client *Client
	now    func() time.Time
}

// NewUsageStore creates a usage counter store.
func NewUsageStore(client *Client) *UsageStore {
	return &UsageStore{client: client, now: time.Now}
}

var _ usage.Store = (*UsageStore)(nil)

// keyTTL keeps closed-month counters around long enough for billing
// reconciliation.
const keyTTL = 62 * 24 * time.Hour

func (s *UsageStore) key(userID shared.ID) string {
	return fmt.Sprintf("usage:%s:%s", userID.String(), s.now().UTC().Format("2006-01"))
}

// Increment adds cost to the user's running total and returns the new
// value.
func (s *UsageStore) Increment(ctx context.Context, userID shared.ID, cost float64) (float64, error) {
	key := s.key(userID)
	pipe := s.client.Raw().TxPipeline()
	incr := pipe.IncrByFloat(ctx, key, cost)
	pipe.Expire(ctx, key, keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	return incr.Val(), nil
}

// Current returns the user's usage for the current billing month.
func (s *UsageStore) Current(ctx context.Context, userID shared.ID) (float64, error) {
	val, err := s.client.Raw().Get(ctx, s.key(userID)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return val, nil
}

// Reset clears the current month's counter.
func (s *UsageStore) Reset(ctx context.Context, userID shared.ID) error {
	if err := s.client.Raw().Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}
