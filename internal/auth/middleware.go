package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/obs"
)

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Verifier    *Verifier
	TokenCookie string
	Logger      zerolog.Logger
}

// Authenticate attaches the caller's bearer token to the request context. With
// a verifier configured the token must verify, and its subject becomes the
// user id. Invalid tokens leave the request anonymous.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		if m.Verifier != nil {
			userID, err := m.Verifier.Verify(token)
			if err != nil {
				obs.LoggerFrom(ctx, m.Logger).Debug().Err(err).Msg("bearer_rejected")
				next.ServeHTTP(w, r)
				return
			}
			ctx = common.WithUserID(ctx, userID)
			obs.AnnotateUser(ctx, userID)
		}
		next.ServeHTTP(w, r.WithContext(common.WithAccessToken(ctx, token)))
	})
}

// RequireAuth rejects requests that Authenticate left anonymous.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.AccessToken(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.TokenCookie != "" {
		if cookie, err := r.Cookie(m.TokenCookie); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	return ""
}
