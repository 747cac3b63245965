package security

import (
	"fmt"
	"net/http"
	"time"
)

// apiHeaders are sent on every response. The service only emits JSON so the
// content policy denies everything.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-site"},
}

// Headers stamps the static security headers. Strict-Transport-Security is
// added only for TLS requests, including those terminated at a proxy that sets
// X-Forwarded-Proto.
type Headers struct {
	HSTS              bool
	HSTSMaxAge        time.Duration
	IncludeSubdomains bool
}

func (h Headers) hsts() string {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 365 * 24 * time.Hour
	}
	v := fmt.Sprintf("max-age=%d", int64(maxAge/time.Second))
	if h.IncludeSubdomains {
		v += "; includeSubDomains"
	}
	return v
}

// Middleware applies the headers before next runs; handlers may override
// Cache-Control.
func (h Headers) Middleware(next http.Handler) http.Handler {
	hsts := ""
	if h.HSTS {
		hsts = h.hsts()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		for _, kv := range apiHeaders {
			hdr.Set(kv[0], kv[1])
		}
		hdr.Set("Cache-Control", "no-store")
		if hsts != "" && isHTTPS(r) {
			hdr.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
