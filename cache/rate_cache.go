package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carrier-service/metrics"
	"carrier-service/models"

	"github.com/redis/go-redis/v9"
)

// DefaultRateTTL is how long an aggregated quote list is served from cache.
const DefaultRateTTL = 10 * time.Minute

const keyPrefix = "rates:"

// RedisRateCache stores aggregated rate quotes per user and shipment.
type RedisRateCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisRateCache creates a cache. A non-positive ttl uses DefaultRateTTL.
func NewRedisRateCache(client redis.UniversalClient, ttl time.Duration) *RedisRateCache {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	return &RedisRateCache{client: client, ttl: ttl}
}

// Key returns the cache key for a user's quote request.
func Key(userID string, details models.ShipmentDetails) (string, error) {
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("marshal shipment details: %w", err)
	}
	sum := sha256.Sum256(b)
	return keyPrefix + userID + ":" + hex.EncodeToString(sum[:]), nil
}

// Get returns the cached quotes. The boolean is false on a miss.
func (c *RedisRateCache) Get(ctx context.Context, userID string, details models.ShipmentDetails) ([]models.RateResponse, bool, error) {
	key, err := Key(userID, details)
	if err != nil {
		return nil, false, err
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RateCacheLookups.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.RateCacheLookups.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var rates []models.RateResponse
	if err := json.Unmarshal(raw, &rates); err != nil {
		metrics.RateCacheLookups.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("decode cached rates: %w", err)
	}
	metrics.RateCacheLookups.WithLabelValues("hit").Inc()
	return rates, true, nil
}

// Set stores rates. Empty lists are not cached so a transient outage of every
// carrier is not remembered.
func (c *RedisRateCache) Set(ctx context.Context, userID string, details models.ShipmentDetails, rates []models.RateResponse) error {
	if len(rates) == 0 {
		return nil
	}
	key, err := Key(userID, details)
	if err != nil {
		return err
	}
	b, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidateUser drops every cached quote for userID.
func (c *RedisRateCache) InvalidateUser(ctx context.Context, userID string) error {
	pattern := keyPrefix + userID + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return nil
}
