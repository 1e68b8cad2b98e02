package usage

import (
	"context"
	"sync"
	"time"

	"lead-response/internal/calls"

	"github.com/redis/go-redis/v9"
)

// ClaimTTL bounds how long a counted call is remembered. Providers stop retrying well within it.
const ClaimTTL = 72 * time.Hour

// ClaimStore records which ended deliveries were already counted, so provider
// retries of the same call do not inflate usage.
type ClaimStore interface {
	// Claim returns true for the first caller with key.
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

func claimKey(p calls.Provider, providerCallID string) string {
	return "usage:counted:" + string(p) + ":" + providerCallID
}

type RedisClaims struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClaims(rdb *redis.Client) *RedisClaims {
	return &RedisClaims{rdb: rdb, ttl: ClaimTTL}
}

func (c *RedisClaims) Claim(ctx context.Context, key string) (bool, error) {
	return c.rdb.SetNX(ctx, key, 1, c.ttl).Result()
}

func (c *RedisClaims) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

// MemoryClaims is a process-local ClaimStore for tests and single-instance dev runs.
type MemoryClaims struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{keys: map[string]struct{}{}}
}

func (c *MemoryClaims) Claim(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keys[key]; ok {
		return false, nil
	}
	c.keys[key] = struct{}{}
	return true, nil
}

func (c *MemoryClaims) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}
