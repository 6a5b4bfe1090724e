package cardcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

const redisPrefix = "raexec:cardinality:"

// Redis shares cardinalities between engine processes.
type Redis struct {
	metrics
	expiry time.Duration
	client *redis.Client
}

func NewRedis(client *redis.Client, expiry time.Duration, reg prometheus.Registerer) *Redis {
	return &Redis{
		metrics: newMetrics(reg, "redis"),
		expiry:  expiry,
		client:  client,
	}
}

func (c *Redis) Get(ctx context.Context, key string) (uint64, bool, error) {
	card, err := c.client.Get(ctx, redisPrefix+key).Uint64()
	if errors.Is(err, redis.Nil) {
		c.misses.Inc()
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	c.hits.Inc()
	return card, true, nil
}

func (c *Redis) Put(ctx context.Context, key string, card uint64) error {
	ok, err := c.client.SetNX(ctx, redisPrefix+key, card, c.expiry).Result()
	if err != nil || ok {
		return err
	}
	existing, err := c.client.Get(ctx, redisPrefix+key).Uint64()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls.
		return nil
	}
	if err != nil {
		return err
	}
	if existing != card {
		return fmt.Errorf("%w: %q holds %d, not %d", ErrConflict, key, existing, card)
	}
	return nil
}
