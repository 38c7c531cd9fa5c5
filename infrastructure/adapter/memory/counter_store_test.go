package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCounterStore_WindowLifecycle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	store := NewCounterStoreWithClock(clock.Now)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		c, err := store.Increment(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, c.Count)
		assert.False(t, c.Exceeded())
	}

	c, err := store.Increment(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, c.Exceeded())

	clock.Advance(time.Minute)
	c, err = store.Increment(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
	assert.Equal(t, clock.Now(), c.WindowStart)
	assert.Equal(t, clock.Now().Add(time.Minute), c.ResetAt())
}

func TestCounterStore_IndependentKeys(t *testing.T) {
	store := NewCounterStore()
	ctx := context.Background()

	_, _ = store.Increment(ctx, "a", 1, time.Minute)
	a, _ := store.Increment(ctx, "a", 1, time.Minute)
	b, _ := store.Increment(ctx, "b", 1, time.Minute)

	assert.True(t, a.Exceeded())
	assert.False(t, b.Exceeded())
}

func TestCounterStore_ConcurrentIncrementsAreNotLost(t *testing.T) {
	store := NewCounterStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Increment(ctx, "burst", 1000, time.Hour)
		}()
	}
	wg.Wait()

	c, err := store.Increment(ctx, "burst", 1000, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(201), c.Count)
}

func TestCounterStore_Cleanup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	store := NewCounterStoreWithClock(clock.Now)
	ctx := context.Background()

	_, _ = store.Increment(ctx, "short", 10, time.Second)
	_, _ = store.Increment(ctx, "long", 10, time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, store.Cleanup())

	c, _ := store.Increment(ctx, "long", 10, time.Hour)
	assert.Equal(t, int64(2), c.Count)
}
