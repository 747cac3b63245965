package forward

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/cache"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

type recorded struct {
	method string
	path   string
	query  url.Values
	token  string
	body   string
}

type fakeAPI struct {
	last   recorded
	status int
	err    error
}

func (f *fakeAPI) Forward(_ context.Context, method, path string, query url.Values, token string, body []byte) (storeapi.RawResponse, error) {
	f.last = recorded{method: method, path: path, query: query, token: token, body: string(body)}
	if f.err != nil {
		return storeapi.RawResponse{}, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return storeapi.RawResponse{Status: status, ContentType: "application/json", Body: []byte(`{"ok":true}`)}, nil
}

func mount(prefix string, rt Route) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := r.Header.Get("X-Test-Token"); tok != "" {
				r = r.WithContext(common.WithAccessToken(r.Context(), tok))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Handle(prefix+"/*", rt)
	r.Handle(prefix, rt)
	return r
}

func send(h http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("X-Test-Token", token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouteForwardsVerbatim(t *testing.T) {
	api := &fakeAPI{status: http.StatusCreated}
	h := mount("/wishlist", Route{API: api, Upstream: "/wishlist", Logger: zerolog.Nop()})

	rr := send(h, http.MethodPost, "/wishlist/add?x=1", `{"productId":"p1"}`, "tok")
	require.Equal(t, http.StatusCreated, rr.Code)
	require.JSONEq(t, `{"ok":true}`, rr.Body.String())
	assert.Equal(t, recorded{
		method: http.MethodPost,
		path:   "/wishlist/add",
		query:  url.Values{"x": {"1"}},
		token:  "tok",
		body:   `{"productId":"p1"}`,
	}, api.last)

	rr = send(h, http.MethodGet, "/wishlist", "", "tok")
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "/wishlist", api.last.path)
	require.Empty(t, api.last.body)
}

func TestRouteRequiresToken(t *testing.T) {
	api := &fakeAPI{}
	rr := send(mount("/wishlist", Route{API: api, Upstream: "/wishlist"}), http.MethodGet, "/wishlist", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Empty(t, api.last.method)
}

func TestRouteMapsPrefixAndRejectsTraversal(t *testing.T) {
	api := &fakeAPI{}
	h := mount("/product-admin", Route{API: api, Upstream: "/product/admin"})

	send(h, http.MethodDelete, "/product-admin/p1", "", "tok")
	require.Equal(t, "/product/admin/p1", api.last.path)

	_, ok := Route{Upstream: "/admin"}.target("../order/new")
	require.False(t, ok)
}

func TestRouteTransportFailure(t *testing.T) {
	api := &fakeAPI{err: storeapi.ErrUnavailable}
	rr := send(mount("/admin", Route{API: api, Upstream: "/admin"}), http.MethodGet, "/admin/orders", "", "tok")
	require.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestInvalidatorAfterAdminWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.New(client, "test", time.Minute)
	ctx := context.Background()

	seed := func() {
		require.NoError(t, c.Set(ctx, cache.KeyProduct("p1"), map[string]string{"id": "p1"}))
		require.NoError(t, c.Set(ctx, cache.KeyCategories, []string{"Laptop"}))
		require.NoError(t, c.Set(ctx, cache.KeyCouponsAvail, []string{"SAVE10"}))
	}
	seed()

	inv := Invalidator{Cache: c, Logger: zerolog.Nop()}
	api := &fakeAPI{}
	h := mount("/admin", Route{API: api, Upstream: "/admin", AfterWrite: inv.AfterWrite})

	send(h, http.MethodPost, "/admin/coupon/new", `{}`, "tok")
	require.False(t, mr.Exists(cache.KeyCouponsAvail))
	require.True(t, mr.Exists(cache.KeyProduct("p1")))

	seed()
	send(h, http.MethodPut, "/admin/product/p1", `{}`, "tok")
	require.False(t, mr.Exists(cache.KeyProduct("p1")))
	require.False(t, mr.Exists(cache.KeyCategories))
	require.True(t, mr.Exists(cache.KeyCouponsAvail))

	seed()
	send(h, http.MethodGet, "/admin/product/p1", "", "tok")
	require.True(t, mr.Exists(cache.KeyProduct("p1")), "reads do not invalidate")

	api.status = http.StatusForbidden
	send(h, http.MethodDelete, "/admin/product/p1", "", "tok")
	require.True(t, mr.Exists(cache.KeyProduct("p1")), "refused writes do not invalidate")
}
