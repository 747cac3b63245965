package storeapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/resilience"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

var noLogger = zerolog.Nop()

func newTestClient(t *testing.T, h http.Handler) *storeapi.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	doer := resilience.HTTPClient{
		Client:      srv.Client(),
		Target:      "storeapi",
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		Timeout:     time.Second,
	}
	return storeapi.New(srv.URL+"/api/v1/", doer, noLogger)
}

func TestProductDecodesExactPrice(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/product/p1", r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"product":{"_id":"p1","name":"Mug","price":19.99,"stock":4,"images":[{"url":"https://img/1"}]}}`)
	}))

	p, err := client.Product(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "p1", p.ID)
	require.True(t, p.Price.Equal(decimal.RequireFromString("19.99")))
	require.Equal(t, 4, p.Stock)
	require.Equal(t, "https://img/1", p.Images[0].URL)
}

func TestProductsPassesQueryThrough(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/product/all", r.URL.Path)
		assert.Equal(t, "laptop", r.URL.Query().Get("keyword"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		_, _ = io.WriteString(w, `{"products":[{"_id":"a","price":10}],"productsCount":1,"resultPerPage":8}`)
	}))

	page, err := client.Products(context.Background(), url.Values{"keyword": {"laptop"}, "page": {"2"}})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	require.Equal(t, 8, page.ResultPerPage)
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var hits int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"success":false,"message":"Coupon has expired"}`)
	}))

	_, err := client.ValidateCoupon(context.Background(), "tok", "SAVE10", decimal.RequireFromString("80"))
	var apiErr *storeapi.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "Coupon has expired", apiErr.Message)
	require.False(t, apiErr.Temporary())
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestServerErrorIsRetriedThenSurfaced(t *testing.T) {
	var hits int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream down"}}`)
	}))

	_, err := client.Categories(context.Background())
	require.Equal(t, http.StatusBadGateway, storeapi.StatusOf(err))
	require.ErrorContains(t, err, "upstream down")
	require.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestValidateCouponSendsBearerAndBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SAVE10", body["code"])
		assert.Equal(t, 76.27, body["cart_total"])
		_, _ = io.WriteString(w, `{"coupon":{"code":"SAVE10","discount_type":"percentage","discount_value":10,"min_purchase_amount":0,"max_discount_amount":null,"used_count":3,"is_active":true,"valid_until":"2030-01-01T00:00:00Z"},"discount":7.627,"final_total":68.643,"message":"Coupon applied"}`)
	}))

	res, err := client.ValidateCoupon(context.Background(), "tok", "SAVE10", decimal.RequireFromString("76.27"))
	require.NoError(t, err)
	require.Equal(t, "SAVE10", res.Coupon.Code)
	require.Nil(t, res.Coupon.MaxDiscountAmount)
	require.NotNil(t, res.Coupon.ValidUntil)
	require.True(t, res.Discount.Equal(decimal.RequireFromString("7.627")))
	require.Equal(t, "Coupon applied", res.Message)
}

func TestForwardReturnsUpstreamStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/wishlist/add", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"productId":"p1"}`, string(body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"message":"already in wishlist"}`)
	}))

	res, err := client.Forward(context.Background(), http.MethodPost, "/wishlist/add", nil, "tok", []byte(`{"productId":"p1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, res.Status)
	require.Equal(t, "application/json", res.ContentType)
	require.Contains(t, string(res.Body), "already in wishlist")
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := storeapi.New(base, resilience.HTTPClient{Client: http.DefaultClient, MaxAttempts: 1}, noLogger)
	_, err := client.Me(context.Background(), "tok")
	require.ErrorIs(t, err, storeapi.ErrUnavailable)
}
