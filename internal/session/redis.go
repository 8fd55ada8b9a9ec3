package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldCreatedAt = "created_at"
	fieldCartID    = "cart_id"
)

// RedisStore keeps each session as a hash with a sliding expiry
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context) (string, error) {
	id := uuid.New().String()
	key := sessionKey(id)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldCreatedAt, time.Now().UTC().Format(time.RFC3339))
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis create session failed: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	ok, err := s.client.Expire(ctx, sessionKey(id), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis touch session failed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) SetCartID(ctx context.Context, id, cartID string) error {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	if err := s.client.HSet(ctx, sessionKey(id), fieldCartID, cartID).Err(); err != nil {
		return fmt.Errorf("redis set session cart failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	err := s.client.Del(ctx, sessionKey(id)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis delete session failed: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}
