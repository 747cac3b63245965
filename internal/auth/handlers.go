package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// API is the subset of the store API used for authentication.
type API interface {
	Login(ctx context.Context, in storeapi.Credentials) (storeapi.AuthResult, error)
	Register(ctx context.Context, in storeapi.Registration) (storeapi.AuthResult, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (storeapi.User, error)
}

// Cookie describes the HttpOnly cookie carrying the bearer token.
type Cookie struct {
	Name     string
	TTL      time.Duration
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// Handler exposes the auth endpoints. Credentials are checked by the store
// API; the storefront only relays the issued token.
type Handler struct {
	API    API
	Cookie Cookie
	Logger zerolog.Logger
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var req storeapi.Registration
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.API.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setCookie(w, result.Token)
	common.Data(w, http.StatusCreated, result)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	var req storeapi.Credentials
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.API.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	obs.LoggerFrom(r.Context(), h.Logger).Info().Str("user_id", result.User.ID).Msg("login")
	h.setCookie(w, result.Token)
	common.Data(w, http.StatusOK, result)
}

// Logout handles POST /auth/logout. The cookie is cleared even when the store
// API call fails.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	if token, ok := common.AccessToken(r.Context()); ok {
		if err := h.API.Logout(r.Context(), token); err != nil {
			obs.LoggerFrom(r.Context(), h.Logger).Warn().Err(err).Msg("upstream_logout_failed")
		}
	}
	h.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	token, ok := common.AccessToken(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	user, err := h.API.Me(r.Context(), token)
	if err != nil {
		if storeapi.StatusOf(err) == http.StatusUnauthorized {
			h.clearCookie(w)
		}
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, user)
}

func (h *Handler) configured(w http.ResponseWriter) bool {
	if h.API == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) || storeapi.WriteError(w, err) {
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func (h *Handler) setCookie(w http.ResponseWriter, token string) {
	if h.Cookie.Name == "" || token == "" {
		return
	}
	ttl := h.Cookie.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    token,
		Domain:   h.Cookie.Domain,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: h.Cookie.SameSite,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	if h.Cookie.Name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    "",
		Domain:   h.Cookie.Domain,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: h.Cookie.SameSite,
	})
}
