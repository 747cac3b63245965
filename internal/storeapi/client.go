package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/obs"
)

const maxResponseBytes = 4 << 20

// Doer executes an outbound request. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client is a typed client for the remote commerce API.
type Client struct {
	BaseURL string
	HTTP    Doer
	Logger  zerolog.Logger
}

// New returns a client rooted at baseURL.
func New(baseURL string, doer Doer, logger zerolog.Logger) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: doer, Logger: logger}
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	token  string
	body   any
	raw    []byte
}

func (c *Client) newHTTPRequest(ctx context.Context, rq request) (*http.Request, error) {
	target := c.BaseURL + rq.path
	if len(rq.query) > 0 {
		target += "?" + rq.query.Encode()
	}
	var body io.Reader
	switch {
	case rq.raw != nil:
		body = bytes.NewReader(rq.raw)
	case rq.body != nil:
		payload, err := json.Marshal(rq.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", rq.op, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, rq.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", rq.op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rq.token != "" {
		req.Header.Set("Authorization", "Bearer "+rq.token)
		req.AddCookie(&http.Cookie{Name: "token", Value: rq.token})
	}
	return req, nil
}

func (c *Client) send(ctx context.Context, rq request) (*http.Response, error) {
	if c.HTTP == nil {
		return nil, fmt.Errorf("%s: %w", rq.op, errors.New("storeapi: http client not configured"))
	}
	req, err := c.newHTTPRequest(ctx, rq)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.HTTP.Do(ctx, req)
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	if obs.StoreAPIDuration != nil {
		obs.StoreAPIDuration.WithLabelValues(rq.op, status).Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.Logger.Warn().Err(err).Str("op", rq.op).Msg("storeapi_unavailable")
		return nil, fmt.Errorf("%s: %w: %w", rq.op, ErrUnavailable, err)
	}
	return resp, nil
}

// call performs rq and decodes a 2xx body into out. Non-2xx responses are
// turned into *APIError.
func (c *Client) call(ctx context.Context, rq request, out any) error {
	resp, err := c.send(ctx, rq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", rq.op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return newAPIError(rq.op, resp.StatusCode, payload)
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", rq.op, err)
	}
	return nil
}

// Forward relays a request verbatim and returns the upstream response whatever
// its status. Only transport failures are returned as errors.
func (c *Client) Forward(ctx context.Context, method, path string, query url.Values, token string, body []byte) (RawResponse, error) {
	rq := request{op: "forward", method: method, path: path, query: query, token: token}
	if len(body) > 0 {
		rq.raw = body
	}
	resp, err := c.send(ctx, rq)
	if err != nil {
		return RawResponse{}, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return RawResponse{}, fmt.Errorf("forward: read body: %w", err)
	}
	return RawResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}

// Ping checks that the store API answers. Anything below 500 counts as up.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.send(ctx, request{op: "ping", method: http.MethodGet, path: "/product/categories"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("ping: %w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
