package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// reader pulls typed values out of koanf. Blank values select the default;
// malformed ones are recorded in errs.
type reader struct {
	k    *koanf.Koanf
	errs []error
}

func (r *reader) raw(key string) string {
	return strings.TrimSpace(r.k.String(key))
}

func (r *reader) fail(key, v string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (r *reader) str(key, def string) string {
	if v := r.raw(key); v != "" {
		return v
	}
	return def
}

func (r *reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.raw(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.raw(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) integer(key string, def int) int {
	v := r.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := r.raw(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *reader) boolean(key string, def bool) bool {
	v := strings.ToLower(r.raw(key))
	switch v {
	case "":
		return def
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *reader) decimal(key, def string) decimal.Decimal {
	v := r.raw(key)
	if v == "" {
		return decimal.RequireFromString(def)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		r.fail(key, v, err)
		return decimal.RequireFromString(def)
	}
	return d
}

func (r *reader) sameSite(key string, def http.SameSite) http.SameSite {
	switch v := strings.ToLower(r.raw(key)); v {
	case "":
		return def
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		r.fail(key, v, errors.New("want lax, strict or none"))
		return def
	}
}
