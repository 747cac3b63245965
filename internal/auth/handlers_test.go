package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

type fakeAPI struct {
	loggedOut string
	logoutErr error
	meErr     error
}

func (f *fakeAPI) Login(_ context.Context, in storeapi.Credentials) (storeapi.AuthResult, error) {
	if in.Password != "correct-horse" {
		return storeapi.AuthResult{}, &storeapi.APIError{Op: "login", Status: http.StatusUnauthorized, Message: "Invalid email or password"}
	}
	return storeapi.AuthResult{User: storeapi.User{ID: "u1", Email: in.Email}, Token: "tok-1"}, nil
}

func (f *fakeAPI) Register(_ context.Context, in storeapi.Registration) (storeapi.AuthResult, error) {
	return storeapi.AuthResult{User: storeapi.User{ID: "u2", Name: in.Name, Email: in.Email}, Token: "tok-2"}, nil
}

func (f *fakeAPI) Logout(_ context.Context, token string) error {
	f.loggedOut = token
	return f.logoutErr
}

func (f *fakeAPI) Me(_ context.Context, token string) (storeapi.User, error) {
	if f.meErr != nil {
		return storeapi.User{}, f.meErr
	}
	return storeapi.User{ID: "u1", Email: "a@b.c"}, nil
}

func newAuthRouter(api *fakeAPI, verifier *Verifier) http.Handler {
	h := &Handler{API: api, Cookie: Cookie{Name: "token", TTL: time.Hour, SameSite: http.SameSiteLaxMode}, Logger: zerolog.Nop()}
	mw := Middleware{Verifier: verifier, TokenCookie: "token", Logger: zerolog.Nop()}
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/me", h.Me)
	r.With(mw.RequireAuth).Get("/private", func(w http.ResponseWriter, r *http.Request) {
		uid, _ := common.UserID(r.Context())
		_, _ = w.Write([]byte(uid))
	})
	return r
}

func TestLoginSetsHttpOnlyCookie(t *testing.T) {
	router := newAuthRouter(&fakeAPI{}, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.c","password":"correct-horse"}`)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Name)
	assert.Equal(t, "tok-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	var body struct {
		Data storeapi.AuthResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "u1", body.Data.User.ID)
}

func TestLoginFailures(t *testing.T) {
	router := newAuthRouter(&fakeAPI{}, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.c","password":"nope"}`)))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "Invalid email or password")
	require.Empty(t, rr.Result().Cookies())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"not-an-email"}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_ERROR")
}

func TestRegisterReturnsCreated(t *testing.T) {
	router := newAuthRouter(&fakeAPI{}, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"name":"Ann","email":"ann@b.c","password":"longenough"}`)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, "tok-2", rr.Result().Cookies()[0].Value)
}

func TestLogoutClearsCookieEvenWhenUpstreamFails(t *testing.T) {
	api := &fakeAPI{logoutErr: errors.New("boom")}
	router := newAuthRouter(api, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "tok-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, "tok-1", api.loggedOut)
	require.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)
}

func TestMeRequiresToken(t *testing.T) {
	api := &fakeAPI{}
	router := newAuthRouter(api, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	api.meErr = &storeapi.APIError{Op: "me", Status: http.StatusUnauthorized, Message: "expired"}
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, -1, rr.Result().Cookies()[0].MaxAge)
}

func TestMiddlewareWithVerifier(t *testing.T) {
	v := newTestVerifier(t)
	router := newAuthRouter(&fakeAPI{}, v)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+signHS(t, jwa.HS256, validClaims(time.Now())))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "user-1", rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+signHS(t, jwa.HS384, validClaims(time.Now())))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
