package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyLimit      = "fount:rate_limit:limit"
	RedisKeyRemaining  = "fount:rate_limit:remaining"
	RedisKeyLastUpdate = "fount:rate_limit:last_update"
)

// Store holds the most recent rate limit state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// MemoryStore keeps the state in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	state State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored state.
func (m *MemoryStore) Load(_ context.Context) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, nil
}

// Save replaces the stored state.
func (m *MemoryStore) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

// RedisStore shares the state between processes that use the same API token.
// Keys expire after one Window, so nothing outlives the quota it describes.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Load retrieves the state from Redis.
// Returns a zero State if no data exists.
func (r *RedisStore) Load(ctx context.Context) (State, error) {
	remaining, err := r.redis.Get(ctx, RedisKeyRemaining).Int()
	if err == redis.Nil {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get remaining: %w", err)
	}

	limit, err := r.redis.Get(ctx, RedisKeyLimit).Int()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("get limit: %w", err)
	}

	lastUpdateStr, err := r.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return State{}, fmt.Errorf("parse last update: %w", err)
		}
	}

	return State{
		Limit:      limit,
		Remaining:  remaining,
		LastUpdate: lastUpdate,
	}, nil
}

// Save stores the state atomically with a TTL of one Window.
func (r *RedisStore) Save(ctx context.Context, state State) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyLimit, state.Limit, Window)
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, Window)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
