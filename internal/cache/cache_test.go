package cache

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr, rdb := newRedis(t)
	c := New(rdb, "catalog", time.Minute)
	ctx := context.Background()

	var dst payload
	ok, err := c.Get(ctx, KeyProduct("p1"), &dst)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, KeyProduct("p1"), payload{Name: "Mug"}))
	ok, err = c.Get(ctx, KeyProduct("p1"), &dst)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Mug", dst.Name)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Get(ctx, KeyProduct("p1"), &dst)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeletePrefix(t *testing.T) {
	mr, rdb := newRedis(t)
	c := New(rdb, "catalog", time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, KeyProduct("a"), payload{}))
	require.NoError(t, c.Set(ctx, KeyProductList("all", url.Values{"page": {"1"}}), payload{}))
	require.NoError(t, c.Set(ctx, KeyCouponsAvail, payload{}))

	require.NoError(t, c.DeletePrefix(ctx, PrefixCatalog))
	require.False(t, mr.Exists(KeyProduct("a")))
	require.True(t, mr.Exists(KeyCouponsAvail))
}

func TestNilCacheIsAlwaysMiss(t *testing.T) {
	var c *JSON
	var dst payload
	ok, err := c.Get(context.Background(), "k", &dst)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Set(context.Background(), "k", dst))
}

func TestProductListKeyIgnoresParamOrder(t *testing.T) {
	a := KeyProductList("all", url.Values{"keyword": {"x"}, "page": {"2"}})
	b := KeyProductList("all", url.Values{"page": {"2"}, "keyword": {"x"}})
	require.Equal(t, a, b)
}
