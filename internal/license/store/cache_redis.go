package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"geekship/pkg/domain"
)

const validationKeyPrefix = "dl:valid:"

// RedisValidationCache memoizes the eligibility predicate. Mint and burn
// invalidate the owner's entry; the TTL bounds staleness across instances
// that miss an invalidation.
type RedisValidationCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisValidationCache(client *redis.Client, ttl time.Duration) *RedisValidationCache {
	return &RedisValidationCache{client: client, ttl: ttl}
}

// Get returns (valid, found, error).
func (c *RedisValidationCache) Get(ctx context.Context, uid domain.UserID) (bool, bool, error) {
	val, err := c.client.Get(ctx, validationKeyPrefix+uid.String()).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (c *RedisValidationCache) Set(ctx context.Context, uid domain.UserID, valid bool) error {
	val := "0"
	if valid {
		val = "1"
	}
	return c.client.Set(ctx, validationKeyPrefix+uid.String(), val, c.ttl).Err()
}

func (c *RedisValidationCache) Invalidate(ctx context.Context, uid domain.UserID) error {
	return c.client.Del(ctx, validationKeyPrefix+uid.String()).Err()
}
