package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBackoff    = 100 * time.Millisecond
	maxRetryAfterWait = 5 * time.Second
	drainLimit        = 64 << 10
)

// HTTPClient is the outbound client for the store API. Each attempt gets its
// own timeout and passes through the breaker. Transport errors and 5xx
// responses are retried with jittered exponential backoff, stretched to a
// 503's Retry-After when that is longer. 4xx responses are returned on the
// first attempt. Requests with a non-idempotent method are sent once unless
// they carry an Idempotency-Key header.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	Target      string
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	Logger      zerolog.Logger
	// Fallback, when set, replaces the final error.
	Fallback func(context.Context, *http.Request, error) (*http.Response, error)
}

// Do sends req. When every attempt returns a 5xx the last response is handed
// back so the caller can surface the upstream message. ErrOpenCircuit is
// returned when the breaker refuses an attempt.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	payload, err := bufferBody(req)
	if err != nil {
		return nil, fmt.Errorf("resilience: buffer body: %w", err)
	}

	attempts := max(cl.MaxAttempts, 1)
	if !replayable(req) {
		attempts = 1
	}
	target := cl.Target
	if target == "" {
		target = req.URL.Host
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}

		resp, err := cl.attempt(ctx, withBody(ctx, req, payload))
		healthy := err == nil && resp.StatusCode < http.StatusInternalServerError
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, healthy)
		}
		if healthy {
			return resp, nil
		}
		if err == nil && attempt == attempts {
			return resp, nil
		}

		wait := Backoff(cmpOr(cl.BaseBackoff, defaultBackoff), attempt, cl.Jitter)
		if err == nil {
			wait = max(wait, retryAfter(resp))
			lastErr = fmt.Errorf("resilience: upstream status %d", resp.StatusCode)
			discard(resp)
		} else {
			lastErr = err
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}

		cl.Logger.Debug().
			Str("target", target).
			Int("attempt", attempt).
			Dur("wait", wait).
			Err(lastErr).
			Msg("upstream_retry")
		RetryAttempts.WithLabelValues(target).Inc()
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

// attempt runs one round trip. The per-attempt deadline is released when the
// caller closes the body.
func (cl HTTPClient) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cmpOr(cl.Timeout, cl.Client.Timeout)
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	resp, err := cl.Client.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: cancel}
	return resp, nil
}

type releasingBody struct {
	io.ReadCloser
	release context.CancelFunc
}

func (b *releasingBody) Close() error {
	defer b.release()
	return b.ReadCloser.Close()
}

func replayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return req.Header.Get("Idempotency-Key") != ""
}

// retryAfter reads a delay-seconds Retry-After from a 503, capped at
// maxRetryAfterWait.
func retryAfter(resp *http.Response) time.Duration {
	if resp.StatusCode != http.StatusServiceUnavailable {
		return 0
	}
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfterWait)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}

// bufferBody reads req's body once so every attempt can resend it.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}
	defer src.Close()
	return io.ReadAll(src)
}

func withBody(ctx context.Context, req *http.Request, payload []byte) *http.Request {
	out := req.Clone(ctx)
	if payload == nil {
		return out
	}
	out.Body = io.NopCloser(bytes.NewReader(payload))
	out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(payload)), nil }
	out.ContentLength = int64(len(payload))
	return out
}

func cmpOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
