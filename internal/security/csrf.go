package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-storefront/internal/common"
)

// CSRF protects cookie-authenticated mutations using the double-submit
// technique. Requests carrying a bearer header, or no auth cookie at all, are
// not exposed to cross-site forgery and pass through.
type CSRF struct {
	Header     string
	CookieName string
	AuthCookie string
	Secure     bool
	SameSite   http.SameSite
	Domain     string
	Exempt     []string
}

func (c CSRF) header() string {
	if h := strings.TrimSpace(c.Header); h != "" {
		return h
	}
	return "X-CSRF-Token"
}

func (c CSRF) cookieName() string {
	if n := strings.TrimSpace(c.CookieName); n != "" {
		return n
	}
	return "csrf_token"
}

// Middleware issues the CSRF cookie on safe requests and enforces the header
// on unsafe ones.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := c.header()
	cookieName := c.cookieName()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			if _, err := r.Cookie(cookieName); err != nil {
				c.issue(w, cookieName)
			}
			next.ServeHTTP(w, r)
			return
		}

		if c.exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}
		if c.AuthCookie != "" {
			if ck, err := r.Cookie(c.AuthCookie); err != nil || ck.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_FAILED", "missing csrf token", nil)
			return
		}

		cookie, err := r.Cookie(cookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_FAILED", "missing csrf cookie", nil)
			return
		}

		if subtleConstantTimeCompare(token, cookie.Value) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_FAILED", "invalid csrf token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (c CSRF) exempt(path string) bool {
	for _, prefix := range c.Exempt {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (c CSRF) issue(w http.ResponseWriter, name string) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return
	}
	sameSite := c.SameSite
	if sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    base64.RawURLEncoding.EncodeToString(buf),
		Path:     "/",
		Domain:   c.Domain,
		Secure:   c.Secure,
		SameSite: sameSite,
	})
}

func subtleConstantTimeCompare(a, b string) int {
	if len(a) != len(b) {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b))
}
