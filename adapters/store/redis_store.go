package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/chainauth/ports"
)

const DefaultRedisPrefix = "chainauth:"

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a new Redis store. Keys are namespaced under prefix,
// DefaultRedisPrefix when empty.
func NewRedisStore(client redis.UniversalClient, prefix string) ports.Store {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) tokenKey(tokenID string) string { return s.prefix + "invalidated:" + tokenID }
func (s *RedisStore) nonceKey(nonce string) string   { return s.prefix + "nonce:" + nonce }

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	// Set key with expiration
	if err := s.client.Set(ctx, s.tokenKey(tokenID), "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}

	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	val, err := s.client.Exists(ctx, s.tokenKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}

	return val > 0, nil
}

// ConsumeNonce sets the nonce key only if absent, so concurrent logins on
// different instances cannot both consume it.
func (s *RedisStore) ConsumeNonce(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.nonceKey(nonce), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume nonce: %w", err)
	}

	return ok, nil
}
