package redis

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKey(t *testing.T) {
	key := "rl:auth:/v1/auth/login:203.0.113.7"

	hashed := HashKey(key)
	assert.True(t, strings.HasPrefix(hashed, KeyPrefix))
	assert.NotContains(t, hashed, "203.0.113.7")
	assert.Equal(t, hashed, HashKey(key))
	assert.NotEqual(t, hashed, HashKey("rl:auth:/v1/auth/login:203.0.113.8"))
	assert.Len(t, strings.TrimPrefix(hashed, KeyPrefix), 64)
}

func TestCounterStore_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := NewCounterStore(client, logger)

	key := "test:" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, HashKey(key)) })

	for i := int64(1); i <= 3; i++ {
		c, err := store.Increment(ctx, key, 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, c.Count)
		assert.Equal(t, i > 2, c.Exceeded())
		assert.WithinDuration(t, time.Now().Add(time.Minute), c.ResetAt(), 2*time.Second)
	}

	ttl, err := client.PTTL(ctx, HashKey(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	_, err = store.Increment(ctx, key, 2, 0)
	assert.Error(t, err)
}
