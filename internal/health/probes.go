package health

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrDisabled is returned by a probe whose dependency is not configured.
var ErrDisabled = errors.New("disabled")

// Pinger is anything that can report upstream reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probes checks the concrete dependencies of the storefront.
type Probes struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Upstream Pinger
}

func (p Probes) PingDB(ctx context.Context, timeout time.Duration) error {
	if p.DB == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.DB.Ping(ctx)
}

func (p Probes) PingRedis(ctx context.Context, timeout time.Duration) error {
	if p.Redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Redis.Ping(ctx).Err()
}

func (p Probes) PingUpstream(ctx context.Context, timeout time.Duration) error {
	if p.Upstream == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Upstream.Ping(ctx)
}
