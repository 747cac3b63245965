package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/toko-storefront/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness gate. The server clears it before shutdown so
// load balancers stop routing new traffic.
func SetReady(v bool) { ready.Store(v) }

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingDB(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
	PingUpstream(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker         Checker
	DBTimeout       time.Duration
	RedisTimeout    time.Duration
	UpstreamTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if h.Checker == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable", nil)
		return
	}
	ctx := r.Context()
	status := map[string]string{
		"db":       probe(h.Checker.PingDB(ctx, orDefault(h.DBTimeout, 500*time.Millisecond))),
		"redis":    probe(h.Checker.PingRedis(ctx, orDefault(h.RedisTimeout, 300*time.Millisecond))),
		"storeapi": probe(h.Checker.PingUpstream(ctx, orDefault(h.UpstreamTimeout, 2*time.Second))),
	}
	code := http.StatusOK
	for _, v := range status {
		if v != "ok" && v != "disabled" {
			code = http.StatusServiceUnavailable
		}
	}
	common.JSON(w, code, status)
}

func probe(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDisabled):
		return "disabled"
	default:
		return err.Error()
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
