// Package session resolves the anonymous storefront session that owns the
// cart and applied coupon.
package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/obs"
)

// HeaderName lets non-browser clients carry the session without cookies.
const HeaderName = "X-Session-ID"

// Middleware reads the session id from the cookie or header, minting a new
// one when absent or malformed.
type Middleware struct {
	CookieName string
	TTL        time.Duration
	Domain     string
	Secure     bool
	SameSite   http.SameSite
}

func (m Middleware) cookieName() string {
	if m.CookieName == "" {
		return "sid"
	}
	return m.CookieName
}

// Handler attaches the session id to the request context.
func (m Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, fromCookie := m.resolve(r)
		if id == "" {
			id = uuid.NewString()
		}
		if !fromCookie {
			m.setCookie(w, id)
		}
		w.Header().Set(HeaderName, id)
		ctx := common.WithSessionID(r.Context(), id)
		obs.AnnotateSession(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) resolve(r *http.Request) (string, bool) {
	if c, err := r.Cookie(m.cookieName()); err == nil && valid(c.Value) {
		return c.Value, true
	}
	if h := strings.TrimSpace(r.Header.Get(HeaderName)); valid(h) {
		return h, false
	}
	return "", false
}

func valid(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func (m Middleware) setCookie(w http.ResponseWriter, id string) {
	ttl := m.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	sameSite := m.SameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName(),
		Value:    id,
		Path:     "/",
		Domain:   m.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: sameSite,
	})
}
