package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps refresh sessions under refresh:<userID> with the
// refresh token's TTL, so revoked-by-expiry cleanup is free.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(userID int64) string {
	return fmt.Sprintf("refresh:%d", userID)
}

func (s *RedisSessionStore) Put(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(userID), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, userID int64) (string, error) {
	token, err := s.client.Get(ctx, sessionKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("failed to get refresh session: %w", err)
	}
	return token, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete refresh session: %w", err)
	}
	return nil
}

var _ SessionStore = (*RedisSessionStore)(nil)
