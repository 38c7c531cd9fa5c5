package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/fixora/condoguard/application/port/outbound"
)

const counterShards = 32

type counter struct {
	count  int64
	start  time.Time
	window time.Duration
}

type counterShard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// CounterStore is a fixed-window counter store sharded by key so concurrent
// requests for different clients do not contend on one mutex.
type CounterStore struct {
	shards [counterShards]*counterShard
	now    func() time.Time
}

var _ outbound.CounterStore = (*CounterStore)(nil)

func NewCounterStore() *CounterStore {
	return NewCounterStoreWithClock(time.Now)
}

func NewCounterStoreWithClock(now func() time.Time) *CounterStore {
	s := &CounterStore{now: now}
	for i := range s.shards {
		s.shards[i] = &counterShard{counters: make(map[string]*counter)}
	}
	return s
}

func (s *CounterStore) shard(key string) *counterShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%counterShards]
}

// Increment bumps the counter for key, opening a new window when none exists
// or the current one is at least window old.
func (s *CounterStore) Increment(ctx context.Context, key string, limit int64, window time.Duration) (outbound.Counter, error) {
	if err := ctx.Err(); err != nil {
		return outbound.Counter{}, err
	}

	now := s.now()
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.counters[key]
	if !ok || now.Sub(c.start) >= window {
		c = &counter{start: now, window: window}
		sh.counters[key] = c
	}
	c.count++

	return outbound.Counter{
		Count:       c.count,
		WindowStart: c.start,
		Window:      window,
		Limit:       limit,
	}, nil
}

// Cleanup removes counters whose window has expired and returns how many were removed.
func (s *CounterStore) Cleanup() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, c := range sh.counters {
			if now.Sub(c.start) >= c.window {
				delete(sh.counters, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// CleanupLoop runs Cleanup every interval until ctx is done.
func (s *CounterStore) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
