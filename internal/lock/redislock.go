package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrBusy is returned when a key is still held once WaitTimeout expires.
	ErrBusy = errors.New("lock: resource busy")
	// ErrLeaseLost means the lease expired or was taken over before Release.
	ErrLeaseLost = errors.New("lock: lease lost")
)

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
)

// compare-and-delete so a holder never frees someone else's lease
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// Key joins parts into a namespaced lock key.
func Key(parts ...string) string {
	return "lock:" + strings.Join(parts, ":")
}

// Locker hands out Redis leases. A zero WaitTimeout waits for as long as the
// context allows.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	WaitTimeout  time.Duration
}

// Lease is a held lock. It expires on its own after the TTL it was acquired
// with.
type Lease struct {
	r     *redis.Client
	key   string
	token string
}

// Key returns the locked key.
func (l *Lease) Key() string { return l.key }

// Release frees the lease. ErrLeaseLost is returned when the key no longer
// carries this lease's token.
func (l *Lease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.r, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Acquire polls SET NX until the key is free, the wait budget is spent
// (ErrBusy) or ctx is done.
func (l Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l.R == nil {
		return nil, errors.New("lock: redis client not configured")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = defaultRetry
	}
	if l.WaitTimeout > 0 {
		var cancel context.CancelCauseFunc
		ctx, cancel = context.WithCancelCause(ctx)
		defer cancel(nil)
		timer := time.AfterFunc(l.WaitTimeout, func() { cancel(ErrBusy) })
		defer timer.Stop()
	}

	lease := &Lease{r: l.R, key: key, token: uuid.NewString()}
	ticker := time.NewTicker(retry)
	defer ticker.Stop()
	for {
		ok, err := l.R.SetNX(ctx, key, lease.token, ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, context.Cause(ctx)
		case err != nil:
			return nil, err
		case ok:
			return lease, nil
		}
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

// WithLock runs fn while holding key. The lease is released whatever fn
// returns; a lost lease at release time is not reported.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}
