package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/example/ec-shop-core/internal/model"
	"github.com/redis/go-redis/v9"
)

const DefaultCartTTL = 15 * time.Minute

// versionTTL outlives any entry so a bumped version is never forgotten
// while a stale view could still be written
const versionTTL = 24 * time.Hour

// setIfVersion writes KEYS[1] only while KEYS[2] still holds ARGV[1]. A
// missing version key reads as "0".
var setIfVersion = redis.NewScript(`
local current = redis.call("GET", KEYS[2])
if not current then
	current = "0"
end
if current ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

func NewRedisCartCache(client *redis.Client, baseTTL time.Duration) *RedisCartCache {
	if baseTTL <= 0 {
		baseTTL = DefaultCartTTL
	}
	return &RedisCartCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCartCache) Get(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart model.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if owner.Kind == model.OwnerSession {
		cart.SessionKey = owner.ID
	}
	return &cart, nil
}

func (r *RedisCartCache) Version(ctx context.Context, owner model.OwnerKey) (string, error) {
	v, err := r.client.Get(ctx, versionKey(owner)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

func (r *RedisCartCache) SetIfVersion(ctx context.Context, owner model.OwnerKey, cart *model.Cart, version string) (bool, error) {
	data, err := json.Marshal(cart)
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}

	// Spread expiry so carts written together don't expire together
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter

	written, err := setIfVersion.Run(ctx, r.client,
		[]string{cacheKey(owner), versionKey(owner)},
		version, data, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set failed: %w", err)
	}
	return written == 1, nil
}

// Delete drops the owners' entries and bumps their versions in one
// MULTI/EXEC
func (r *RedisCartCache) Delete(ctx context.Context, owners ...model.OwnerKey) error {
	if len(owners) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, owner := range owners {
			pipe.Incr(ctx, versionKey(owner))
			pipe.PExpire(ctx, versionKey(owner), versionTTL)
			pipe.Del(ctx, cacheKey(owner))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(owner model.OwnerKey) string {
	return fmt.Sprintf("cart:%s:%s", owner.Kind, owner.ID)
}

func versionKey(owner model.OwnerKey) string {
	return fmt.Sprintf("cartver:%s:%s", owner.Kind, owner.ID)
}
