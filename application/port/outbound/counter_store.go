package outbound

import (
	"context"
	"time"
)

// Counter is the state of one rate-limit window after an increment.
type Counter struct {
	Count       int64
	WindowStart time.Time
	Window      time.Duration
	Limit       int64
}

// Exceeded reports whether the post-increment count is over the limit.
func (c Counter) Exceeded() bool {
	return c.Count > c.Limit
}

// ResetAt is when the current window expires.
func (c Counter) ResetAt() time.Time {
	return c.WindowStart.Add(c.Window)
}

// CounterStore atomically increments the counter for key, starting a fresh
// window with Count=1 when none exists or the previous one has expired.
type CounterStore interface {
	Increment(ctx context.Context, key string, limit int64, window time.Duration) (Counter, error)
}
