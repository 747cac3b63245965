package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/toko-storefront/internal/common"
)

// Handler throttles a route with a sliding Window. Key picks the bucket for a
// request; Limit attempts are allowed per Period. When Redis fails the
// request goes through and OnError is told.
type Handler struct {
	Window  Window
	Key     func(*http.Request) string
	Limit   int
	Period  time.Duration
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Window.Hit(r.Context(), h.Key(r), h.Limit, h.Period)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(d.Limit, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if !d.Allowed {
			headers.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, slow down", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionKey keys the limit on the storefront session, falling back to the
// client IP for requests that have none.
func SessionKey(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		if sid, ok := common.SessionID(r.Context()); ok {
			return scope + ":session:" + sid
		}
		return scope + ":ip:" + common.ClientIP(r)
	}
}
