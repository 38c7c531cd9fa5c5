package redis

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/fixora/condoguard/application/port/outbound"
)

// KeyPrefix menandai semua counter rate limit di Redis
const KeyPrefix = "condoguard:rl:"

// incrementScript menaikkan counter dan memasang expiry hanya pada hit pertama,
// lalu mengembalikan count dan sisa TTL dalam milidetik.
var incrementScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// CounterStore implementasi outbound.CounterStore dengan Redis
type CounterStore struct {
	client *redis.Client
	logger *logrus.Logger
	now    func() time.Time
}

var _ outbound.CounterStore = (*CounterStore)(nil)

// NewClient membuat client Redis dari URL dan memastikan koneksi tersedia
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewCounterStore membuat instance baru dari CounterStore
func NewCounterStore(client *redis.Client, logger *logrus.Logger) *CounterStore {
	return &CounterStore{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// HashKey menyamarkan key (yang berisi IP client) sebelum disimpan di Redis
func HashKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Increment menambah counter secara atomik dan mengembalikan state window
func (s *CounterStore) Increment(ctx context.Context, key string, limit int64, window time.Duration) (outbound.Counter, error) {
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		return outbound.Counter{}, fmt.Errorf("invalid rate limit window %s", window)
	}

	res, err := incrementScript.Run(ctx, s.client, []string{HashKey(key)}, windowMs).Slice()
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to increment rate limit counter")
		return outbound.Counter{}, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if len(res) != 2 {
		return outbound.Counter{}, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}

	count, ok1 := res[0].(int64)
	ttlMs, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return outbound.Counter{}, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}

	resetAt := s.now().Add(time.Duration(ttlMs) * time.Millisecond)

	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"count":  count,
		"limit":  limit,
		"window": window,
	}).Debug("Rate limit incremented")

	return outbound.Counter{
		Count:       count,
		WindowStart: resetAt.Add(-window),
		Window:      window,
		Limit:       limit,
	}, nil
}
