package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// redisClient is the subset of *redis.Client the cache needs.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Redis keeps one generation counter per entity ("pos:gen:<entity>") and
// stores values under "pos:<entity>:<generation>:<key>" with a TTL. Dead
// generations simply expire.
type Redis struct {
	client redisClient
	ttl    time.Duration
}

func NewRedis(client redisClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{client: client, ttl: ttl}
}

// NewRedisFromURL accepts redis://[:password@]host:port/db.
func NewRedisFromURL(rawURL string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return NewRedis(redis.NewClient(opts), ttl), nil
}

func (c *Redis) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.client.Close()
}

func (c *Redis) Lookup(ctx context.Context, entity Entity, key string, dest any) (Slot, bool, error) {
	generation, err := c.generation(ctx, entity)
	if err != nil {
		return Slot{}, false, err
	}

	slot := Slot{Entity: entity, Key: versionedKey(entity, generation, key)}
	raw, err := c.client.Get(ctx, slot.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return slot, false, nil
	}
	if err != nil {
		return slot, false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return slot, false, err
	}
	return slot, true, nil
}

func (c *Redis) Fill(ctx context.Context, slot Slot, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, slot.Key, payload, c.ttl).Err()
}

func (c *Redis) Invalidate(ctx context.Context, entities ...Entity) error {
	var result error
	for _, entity := range entities {
		if err := c.client.Incr(ctx, generationKey(entity)).Err(); err != nil {
			result = multierr.Append(result, fmt.Errorf("invalidate %s: %w", entity, err))
		}
	}
	return result
}

func (c *Redis) generation(ctx context.Context, entity Entity) (int64, error) {
	generation, err := c.client.Get(ctx, generationKey(entity)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return generation, err
}

func generationKey(entity Entity) string {
	return "pos:gen:" + string(entity)
}
