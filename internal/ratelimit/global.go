package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/toko-storefront/internal/common"
)

// NewRedisStore wires a fixed-window limiter store backed by Redis.
func NewRedisStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// Global builds the per-IP request limit applied to the whole API. rate uses
// the "<limit>-<period>" format, e.g. "300-M". Store failures let the request
// through and are reported to onError.
func Global(rate string, store limiter.Store, onError func(error)) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	mw := stdlib.NewMiddleware(
		limiter.New(store, parsed),
		stdlib.WithKeyGetter(func(r *http.Request) string { return "ip:" + common.ClientIP(r) }),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			if onError != nil {
				onError(err)
			}
			common.JSONError(w, http.StatusServiceUnavailable, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable", nil)
		}),
	)
	return mw.Handler, nil
}
