package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Applied is the coupon the store API accepted for a session.
type Applied struct {
	Coupon     Coupon          `json:"coupon"`
	Discount   decimal.Decimal `json:"discount"`
	FinalTotal decimal.Decimal `json:"finalTotal"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Message    string          `json:"message,omitempty"`
	AppliedAt  time.Time       `json:"appliedAt"`
}

// StateStore persists the applied coupon per session.
type StateStore interface {
	Get(ctx context.Context, session string) (*Applied, error)
	Put(ctx context.Context, session string, a Applied) error
	Delete(ctx context.Context, session string) error
}

// RedisState stores Applied as JSON under coupon:{session}.
type RedisState struct {
	R   *redis.Client
	TTL time.Duration
}

func stateKey(session string) string { return "coupon:" + session }

// Get returns the applied coupon or nil when none is stored.
func (s RedisState) Get(ctx context.Context, session string) (*Applied, error) {
	data, err := s.R.Get(ctx, stateKey(session)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load coupon state: %w", err)
	}
	var a Applied
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode coupon state: %w", err)
	}
	return &a, nil
}

// Put stores a.
func (s RedisState) Put(ctx context.Context, session string, a Applied) error {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode coupon state: %w", err)
	}
	return s.R.Set(ctx, stateKey(session), data, ttl).Err()
}

// Delete forgets the applied coupon.
func (s RedisState) Delete(ctx context.Context, session string) error {
	return s.R.Del(ctx, stateKey(session)).Err()
}
