// Package forward relays storefront routes to the store API unchanged.
package forward

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cache"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

const maxBody = 1 << 20

// API relays a raw request to the store API.
type API interface {
	Forward(ctx context.Context, method, path string, query url.Values, token string, body []byte) (storeapi.RawResponse, error)
}

// Route forwards every request under a mounted prefix to Upstream plus the
// wildcard remainder. AfterWrite, when set, runs after a successful mutation
// with the forwarded upstream path.
type Route struct {
	API        API
	Upstream   string
	AfterWrite func(ctx context.Context, upstreamPath string)
	Logger     zerolog.Logger
}

// ServeHTTP implements http.Handler. A bearer token is required.
func (rt Route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rt.API == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "forwarding not configured", nil)
		return
	}
	token, ok := common.AccessToken(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required", nil)
		return
	}
	target, ok := rt.target(chi.URLParam(r, "*"))
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid path", nil)
		return
	}
	var body []byte
	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil || len(body) > maxBody {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", nil)
			return
		}
	}
	res, err := rt.API.Forward(r.Context(), r.Method, target, r.URL.Query(), token, body)
	if err != nil {
		if !storeapi.WriteError(w, err) {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		}
		return
	}
	if rt.AfterWrite != nil && isWrite(r.Method) && res.Status < http.StatusBadRequest {
		rt.AfterWrite(r.Context(), target)
	}
	obs.LoggerFrom(r.Context(), rt.Logger).Debug().
		Str("method", r.Method).
		Str("upstream", target).
		Int("status", res.Status).
		Msg("forwarded")
	common.Raw(w, res.Status, res.ContentType, res.Body)
}

// target joins the wildcard onto Upstream, refusing anything that would
// escape it.
func (rt Route) target(rest string) (string, bool) {
	base := "/" + strings.Trim(rt.Upstream, "/")
	if rest == "" {
		return base, true
	}
	if strings.Contains(rest, "..") || strings.Contains(rest, "//") {
		return "", false
	}
	return path.Join(base, rest), true
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Invalidator drops catalog and coupon caches after admin mutations.
type Invalidator struct {
	Cache  *cache.JSON
	Logger zerolog.Logger
}

// AfterWrite matches Route.AfterWrite.
func (inv Invalidator) AfterWrite(ctx context.Context, upstreamPath string) {
	var prefixes []string
	switch {
	case strings.Contains(upstreamPath, "/coupon"):
		prefixes = []string{cache.KeyCouponsAvail}
	case strings.Contains(upstreamPath, "/product"):
		prefixes = []string{cache.PrefixCatalog}
	}
	for _, p := range prefixes {
		if err := inv.Cache.DeletePrefix(ctx, p); err != nil {
			obs.LoggerFrom(ctx, inv.Logger).Warn().Err(err).Str("prefix", p).Msg("cache_invalidate_failed")
		}
	}
}
