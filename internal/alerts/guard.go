// Package alerts keeps operator notifications from flooding the chat:
// repeats of the same keyed notice are suppressed for a window, and
// delivery overall is rate limited.
package alerts

import (
	"context"
	"fmt"
	"time"
)

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// ErrThrottled is returned when a notification was dropped by the rate limit.
type ErrThrottled struct {
	RetryAfter time.Duration
}

func (e *ErrThrottled) Error() string {
	return fmt.Sprintf("notification dropped by rate limit, retry after %s", e.RetryAfter.Round(time.Second))
}

type dedupKey struct{}

// WithDedupKey marks the notification sent with ctx as a repeatable notice
// identified by key.
func WithDedupKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, dedupKey{}, key)
}

// DedupKeyFrom returns the key set by WithDedupKey.
func DedupKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(dedupKey{}).(string)
	return key
}

// Guard wraps a Notifier with deduplication and throttling.
type Guard struct {
	next      Notifier
	throttler *Throttler
	dedup     *DedupStore
}

// NewGuard wraps next. Keyed notices repeat at most once per dedupWindow and
// at most ratePerMinute notifications are delivered per minute.
func NewGuard(next Notifier, ratePerMinute int, dedupWindow time.Duration) *Guard {
	return &Guard{
		next:      next,
		throttler: NewThrottler(ratePerMinute, ratePerMinute),
		dedup:     NewDedupStore(dedupWindow),
	}
}

// Notify delivers text unless it repeats a recent keyed notice or the rate
// limit is exhausted. Suppressed duplicates are not an error.
func (g *Guard) Notify(ctx context.Context, text string) error {
	key := DedupKeyFrom(ctx)
	if key != "" && g.dedup.IsDuplicate(key) {
		return nil
	}
	if !g.throttler.Allow() {
		return &ErrThrottled{RetryAfter: g.throttler.RetryAfter()}
	}
	if err := g.next.Notify(ctx, text); err != nil {
		return err
	}
	if key != "" {
		g.dedup.Record(key)
	}
	return nil
}
