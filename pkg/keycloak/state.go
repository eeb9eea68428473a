package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultStateTTL  = 10 * time.Minute
	defaultStateSize = 10000
	redisStatePrefix = "keycloak:state:"
)

// PendingLogin is what the host remembers between Initiate and Callback
type PendingLogin struct {
	ReturnTo  string    `json:"return_to"`
	CreatedAt time.Time `json:"created_at"`
}

// StateStore keeps issued state tokens until their callback consumes them
type StateStore interface {
	Save(ctx context.Context, state string, pending PendingLogin) error
	// Consume returns the pending login and forgets it; ErrStateNotFound
	// when the state was never issued, already used or expired.
	Consume(ctx context.Context, state string) (PendingLogin, error)
	// TTL is how long an issued state stays redeemable
	TTL() time.Duration
}

// MemoryStateStore is a size-bounded in-process StateStore
type MemoryStateStore struct {
	states *expirable.LRU[string, PendingLogin]
	ttl    time.Duration
}

// NewMemoryStateStore creates an in-memory store. Zero values pick defaults.
func NewMemoryStateStore(size int, ttl time.Duration) *MemoryStateStore {
	if size <= 0 {
		size = defaultStateSize
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &MemoryStateStore{
		states: expirable.NewLRU[string, PendingLogin](size, nil, ttl),
		ttl:    ttl,
	}
}

// TTL implements StateStore
func (s *MemoryStateStore) TTL() time.Duration { return s.ttl }

// Save implements StateStore
func (s *MemoryStateStore) Save(_ context.Context, state string, pending PendingLogin) error {
	s.states.Add(state, pending)
	return nil
}

// Consume implements StateStore
func (s *MemoryStateStore) Consume(_ context.Context, state string) (PendingLogin, error) {
	pending, ok := s.states.Peek(state)
	if !ok {
		return PendingLogin{}, ErrStateNotFound
	}
	// Only one concurrent consumer wins the removal.
	if !s.states.Remove(state) {
		return PendingLogin{}, ErrStateNotFound
	}
	return pending, nil
}

// RedisStateStore shares state tokens across host replicas
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore creates a Redis-backed store
func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisStateStore{client: client, ttl: ttl}
}

// Save implements StateStore
func (s *RedisStateStore) Save(ctx context.Context, state string, pending PendingLogin) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending login: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisStatePrefix+state, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}
	if !ok {
		return fmt.Errorf("state %q already issued", state)
	}
	return nil
}

// Consume implements StateStore
func (s *RedisStateStore) Consume(ctx context.Context, state string) (PendingLogin, error) {
	data, err := s.client.GetDel(ctx, redisStatePrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingLogin{}, ErrStateNotFound
	}
	if err != nil {
		return PendingLogin{}, fmt.Errorf("failed to consume state: %w", err)
	}

	var pending PendingLogin
	if err := json.Unmarshal(data, &pending); err != nil {
		return PendingLogin{}, fmt.Errorf("failed to decode pending login: %w", err)
	}
	return pending, nil
}

// TTL implements StateStore
func (s *RedisStateStore) TTL() time.Duration { return s.ttl }

// Ping checks the Redis connection
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
