// Package redisbackend implements broker.Backend over Redis: channel
// publish/subscribe, sorted-set cache, and key TTL are native Redis
// primitives, which is why this is the production backend.
package redisbackend

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cncaiprojem/progressd/internal/broker"
)

// Backend adapts a *redis.Client to broker.Backend.
type Backend struct {
	client *redis.Client
}

// New wraps an already-configured redis.Client. Callers own the
// client's lifecycle (construction and Close).
func New(client *redis.Client) *Backend {
	return &Backend{client: client}
}

// Dial is a convenience constructor for production use, taking a Config
// struct rather than a raw connection string.
type Config struct {
	Addr     string
	Password string
	DB       int
}

func Dial(cfg Config) *Backend {
	return New(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}))
}

func (b *Backend) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redisbackend: publish %s: %w", channel, err)
	}
	return nil
}

func (b *Backend) Subscribe(ctx context.Context, channels ...string) (broker.Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redisbackend: subscribe %v: %w", channels, err)
	}
	return newSubscription(pubsub), nil
}

func (b *Backend) CacheAppend(ctx context.Context, key string, score float64, member []byte) error {
	err := b.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		return fmt.Errorf("redisbackend: zadd %s: %w", key, err)
	}
	return nil
}

func (b *Backend) CacheTrim(ctx context.Context, key string, keepLast int64) error {
	// ZREMRANGEBYRANK drops the lowest-scored members; keep the top
	// keepLast by removing everything below rank -keepLast.
	err := b.client.ZRemRangeByRank(ctx, key, 0, -keepLast-1).Err()
	if err != nil {
		return fmt.Errorf("redisbackend: trim %s: %w", key, err)
	}
	return nil
}

func (b *Backend) CacheExpire(ctx context.Context, key string, ttlSeconds int64) error {
	err := b.client.Expire(ctx, key, secondsToDuration(ttlSeconds)).Err()
	if err != nil {
		return fmt.Errorf("redisbackend: expire %s: %w", key, err)
	}
	return nil
}

func (b *Backend) CacheRangeByScore(ctx context.Context, key string, minExclusive float64) ([][]byte, error) {
	members, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("(%s", formatScore(minExclusive)),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redisbackend: zrangebyscore %s: %w", key, err)
	}
	return toByteSlices(members), nil
}

func (b *Backend) CacheRevRange(ctx context.Context, key string, count int64) ([][]byte, error) {
	if count <= 0 {
		return nil, nil
	}
	members, err := b.client.ZRevRange(ctx, key, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisbackend: zrevrange %s: %w", key, err)
	}
	return toByteSlices(members), nil
}

func toByteSlices(members []string) [][]byte {
	out := make([][]byte, len(members))
	for i, m := range members {
		out[i] = []byte(m)
	}
	return out
}
