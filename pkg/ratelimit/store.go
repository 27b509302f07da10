package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists throttle state.
type Store interface {
	Load(ctx context.Context) (*ThrottleState, error)

	// Extend moves the back-off deadline to until unless a later deadline is
	// already recorded, and notes a throttle at time at.
	Extend(ctx context.Context, until, at time.Time) error
}

type memoryStore struct {
	mu    sync.Mutex
	state ThrottleState
}

// NewMemoryStore returns a store shared by the workers of one process.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (m *memoryStore) Load(context.Context) (*ThrottleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	return &s, nil
}

func (m *memoryStore) Extend(_ context.Context, until, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until.After(m.state.BackoffUntil) {
		m.state.BackoffUntil = until
	}
	m.state.LastThrottle = at
	m.state.Throttles++
	return nil
}

// extendScript keeps the later of the stored and proposed deadline.
var extendScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > cur then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
redis.call('SET', KEYS[2], ARGV[3])
return redis.call('INCR', KEYS[3])
`)

type redisStore struct {
	redis *redis.Client
}

// NewRedisStore returns a store shared by every process using the same Redis.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{redis: client}
}

func (r *redisStore) Load(ctx context.Context) (*ThrottleState, error) {
	until, err := r.redis.Get(ctx, RedisKeyBackoffUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get backoff deadline: %w", err)
	}

	last, err := r.redis.Get(ctx, RedisKeyLastThrottle).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last throttle: %w", err)
	}

	count, err := r.redis.Get(ctx, RedisKeyThrottleCount).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get throttle count: %w", err)
	}

	state := &ThrottleState{Throttles: count}
	if until > 0 {
		state.BackoffUntil = time.UnixMilli(until)
	}
	if last > 0 {
		state.LastThrottle = time.UnixMilli(last)
	}
	return state, nil
}

func (r *redisStore) Extend(ctx context.Context, until, at time.Time) error {
	ttl := until.Sub(at).Milliseconds()
	if ttl < 1 {
		ttl = 1
	}

	keys := []string{RedisKeyBackoffUntil, RedisKeyLastThrottle, RedisKeyThrottleCount}
	args := []any{
		strconv.FormatInt(until.UnixMilli(), 10),
		strconv.FormatInt(ttl, 10),
		strconv.FormatInt(at.UnixMilli(), 10),
	}

	if err := extendScript.Run(ctx, r.redis, keys, args...).Err(); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}
	return nil
}
