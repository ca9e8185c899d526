package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisStatePrefix = "leadbridge:oauth_state:"

// RedisStateStore keeps OAuth states in Redis so several server replicas
// can accept the same callback.
type RedisStateStore struct {
	client redis.UniversalClient
}

// NewRedisStateStore wraps an existing client.
func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// NewRedisStateStoreFromURL parses redisURL, connects and pings the server.
func NewRedisStateStoreFromURL(ctx context.Context, redisURL string) (*RedisStateStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStateStore(client), nil
}

// SaveState stores the encoded state payload with TTL.
func (s *RedisStateStore) SaveState(ctx context.Context, state string, data OAuthState, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, redisStatePrefix+state, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// ConsumeState atomically loads and deletes the state payload.
func (s *RedisStateStore) ConsumeState(ctx context.Context, state string) (*OAuthState, error) {
	raw, err := s.client.GetDel(ctx, redisStatePrefix+state).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	var data OAuthState
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &data, nil
}

// Close closes the underlying client.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

var _ StateStore = (*RedisStateStore)(nil)
