package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists carts per session.
type Store interface {
	Load(ctx context.Context, session string) (Cart, error)
	Save(ctx context.Context, session string, c Cart) error
	Delete(ctx context.Context, session string) error
}

// RedisStore keeps each cart as a JSON array of line items under
// cart:{session}. Every write slides the TTL.
type RedisStore struct {
	R   *redis.Client
	TTL time.Duration
}

func key(session string) string { return "cart:" + session }

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

// Load returns the stored cart or an empty one.
func (s RedisStore) Load(ctx context.Context, session string) (Cart, error) {
	data, err := s.R.Get(ctx, key(session)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, nil
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var items []LineItem
	if err := json.Unmarshal(data, &items); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return Cart{Items: items}, nil
}

// Save writes c. An empty cart deletes the key.
func (s RedisStore) Save(ctx context.Context, session string, c Cart) error {
	if c.Empty() {
		return s.Delete(ctx, session)
	}
	data, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.R.Set(ctx, key(session), data, s.ttl()).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// Delete removes the cart.
func (s RedisStore) Delete(ctx context.Context, session string) error {
	if err := s.R.Del(ctx, key(session)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
