package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-storefront/internal/obs"
)

// JSON wraps Redis helpers for JSON payloads. A nil *JSON or nil client turns
// every call into a miss so callers never need a separate code path.
type JSON struct {
	client *redis.Client
	ttl    time.Duration
	name   string
}

// New constructs a cache helper. name labels hit/miss metrics.
func New(client *redis.Client, name string, ttl time.Duration) *JSON {
	return &JSON{client: client, ttl: ttl, name: name}
}

// Get unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *JSON) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			obs.IncCounter(obs.CacheLookupTotal, c.name, "miss")
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// A payload that no longer matches the type is treated as a miss.
		_ = c.client.Del(ctx, key).Err()
		obs.IncCounter(obs.CacheLookupTotal, c.name, "miss")
		return false, nil
	}
	obs.IncCounter(obs.CacheLookupTotal, c.name, "hit")
	return true, nil
}

// Set serialises v as JSON and stores it with the configured TTL.
func (c *JSON) Set(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes keys.
func (c *JSON) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// DeletePrefix removes every key starting with prefix using SCAN.
func (c *JSON) DeletePrefix(ctx context.Context, prefix string) error {
	if c == nil || c.client == nil || prefix == "" {
		return nil
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return c.client.Del(ctx, batch...).Err()
	}
	return nil
}
