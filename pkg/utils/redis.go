package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the client setup used by the API. Zero values fall back to the defaults below.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout time.Duration
	// IOTimeout bounds each read and write.
	IOTimeout   time.Duration
	PoolSize    int
	PingTimeout time.Duration
}

const (
	defaultRedisDialTimeout = 3 * time.Second
	defaultRedisIOTimeout   = 2 * time.Second
	defaultRedisPoolSize    = 20
	defaultRedisPing        = 2 * time.Second
)

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// OpenRedis builds a client and fails fast when the server does not answer PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	pool := cfg.PoolSize
	if pool <= 0 {
		pool = defaultRedisPoolSize
	}
	io := orDuration(cfg.IOTimeout, defaultRedisIOTimeout)

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     orDuration(cfg.DialTimeout, defaultRedisDialTimeout),
		ReadTimeout:     io,
		WriteTimeout:    io,
		PoolSize:        pool,
		PoolTimeout:     2 * io,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnMaxLifetime: 30 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, orDuration(cfg.PingTimeout, defaultRedisPing))
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Slot counters cap how many units of work a key may hold at once. A slot is taken with
// TakeSlot and either handed back with GiveBackSlot or bound to an owner key with BindSlot and
// later freed with FreeBoundSlot. Every key carries a TTL so a crashed holder cannot pin a slot.

var slotTakeScript = redis.NewScript(`
-- KEYS[1] counter, ARGV[1] limit, ARGV[2] ttl ms
local n = redis.call('INCR', KEYS[1])
if n > tonumber(ARGV[1]) then
  if redis.call('DECR', KEYS[1]) <= 0 then
    redis.call('DEL', KEYS[1])
  end
  return 0
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`)

var slotGiveBackScript = redis.NewScript(`
-- KEYS[1] counter
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('DECR', KEYS[1]) <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

var slotFreeScript = redis.NewScript(`
-- KEYS[1] counter, KEYS[2] bound slot
if redis.call('DEL', KEYS[2]) == 0 then
  return 0
end
if redis.call('EXISTS', KEYS[1]) == 1 and redis.call('DECR', KEYS[1]) <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

func checkSlotArgs(rdb *redis.Client, keys ...string) error {
	if rdb == nil {
		return errors.New("redis client is nil")
	}
	for _, k := range keys {
		if k == "" {
			return errors.New("slot key is required")
		}
	}
	return nil
}

// TakeSlot reports whether counterKey had room for one more holder under limit.
// The counter TTL is refreshed on every successful take.
func TakeSlot(ctx context.Context, rdb *redis.Client, counterKey string, limit int, ttl time.Duration) (bool, error) {
	if err := checkSlotArgs(rdb, counterKey); err != nil {
		return false, err
	}
	if limit <= 0 {
		return false, errors.New("limit must be > 0")
	}
	if ttl <= 0 {
		return false, errors.New("ttl must be > 0")
	}
	res, err := slotTakeScript.Run(ctx, rdb, []string{counterKey}, limit, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// GiveBackSlot returns an unbound slot. A counter that already expired is left alone.
func GiveBackSlot(ctx context.Context, rdb *redis.Client, counterKey string) error {
	if err := checkSlotArgs(rdb, counterKey); err != nil {
		return err
	}
	return slotGiveBackScript.Run(ctx, rdb, []string{counterKey}).Err()
}

// BindSlot records owner as the holder of a taken slot under slotKey.
func BindSlot(ctx context.Context, rdb *redis.Client, slotKey, owner string, ttl time.Duration) error {
	if err := checkSlotArgs(rdb, slotKey); err != nil {
		return err
	}
	if ttl <= 0 {
		return errors.New("ttl must be > 0")
	}
	return rdb.Set(ctx, slotKey, owner, ttl).Err()
}

// FreeBoundSlot releases the slot bound under slotKey. Only the first call for a slot
// decrements counterKey; later calls report false.
func FreeBoundSlot(ctx context.Context, rdb *redis.Client, counterKey, slotKey string) (bool, error) {
	if err := checkSlotArgs(rdb, counterKey, slotKey); err != nil {
		return false, err
	}
	res, err := slotFreeScript.Run(ctx, rdb, []string{counterKey, slotKey}).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
