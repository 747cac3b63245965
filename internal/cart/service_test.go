package cart

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

type stubProducts struct {
	mu       sync.Mutex
	products map[string]storeapi.Product
	calls    int
}

func (s *stubProducts) Product(_ context.Context, id string) (storeapi.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	p, ok := s.products[id]
	if !ok {
		return storeapi.Product{}, &storeapi.APIError{Op: "product", Status: http.StatusNotFound, Message: "Product not found"}
	}
	return p, nil
}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis, *stubProducts) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	products := &stubProducts{products: map[string]storeapi.Product{
		"p1": {ID: "p1", Name: "Mug", Price: decimal.RequireFromString("29.99"), Stock: 3, Images: []storeapi.Image{{URL: "https://img/mug"}}},
		"p2": {ID: "p2", Name: "Cap", Price: decimal.RequireFromString("15.64"), Stock: 10},
		"p3": {ID: "p3", Name: "Sold out", Price: decimal.RequireFromString("5"), Stock: 0},
	}}
	svc := &Service{
		Store:    RedisStore{R: client, TTL: time.Hour},
		Products: products,
		Locker:   lock.Locker{R: client, RetryBackoff: time.Millisecond, WaitTimeout: time.Second},
		LockTTL:  5 * time.Second,
	}
	return svc, mr, products
}

func TestServiceAddPersistsSnapshot(t *testing.T) {
	svc, mr, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", "p1", 1)
	require.NoError(t, err)
	c, err := svc.Add(ctx, "s1", "p2", 2)
	require.NoError(t, err)
	require.Len(t, c.Items, 2)

	require.True(t, mr.Exists("cart:s1"))
	require.Equal(t, time.Hour, mr.TTL("cart:s1"))

	loaded, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, []string{"https://img/mug"}, loaded.Items[0].Product.Images)
	require.True(t, loaded.Subtotal().Equal(decimal.RequireFromString("61.27")))

	other, err := svc.Get(ctx, "s2")
	require.NoError(t, err)
	require.True(t, other.Empty())
}

func TestServiceAddErrors(t *testing.T) {
	svc, _, products := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", "p1", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Zero(t, products.calls, "quantity is checked before the product lookup")

	_, err = svc.Add(ctx, "s1", "p3", 1)
	require.ErrorIs(t, err, ErrOutOfStock)

	_, err = svc.Add(ctx, "s1", "p1", 4)
	require.ErrorIs(t, err, ErrStockExceeded)

	_, err = svc.Add(ctx, "s1", "missing", 1)
	require.True(t, storeapi.IsNotFound(err))
}

func TestServiceUpdateToZeroRemovesAndDeletesKey(t *testing.T) {
	svc, mr, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", "p1", 2)
	require.NoError(t, err)

	_, err = svc.UpdateQuantity(ctx, "s1", "p2", 1)
	require.ErrorIs(t, err, ErrNotFound)

	c, err := svc.UpdateQuantity(ctx, "s1", "p1", 0)
	require.NoError(t, err)
	require.True(t, c.Empty())
	require.False(t, mr.Exists("cart:s1"))
}

func TestServiceRemoveAndClear(t *testing.T) {
	svc, mr, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "s1", "p1", 1)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "s1", "p2", 1)
	require.NoError(t, err)

	c, err := svc.Remove(ctx, "s1", "p1")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	_, err = svc.Remove(ctx, "s1", "p1")
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, "s1"))
	require.False(t, mr.Exists("cart:s1"))
}

func TestServiceConcurrentAddsNeverExceedStock(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Add(ctx, "s1", "p1", 1)
		}()
	}
	wg.Wait()

	c, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 3, c.Count())
}

func TestServiceRequiresSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Get(context.Background(), " ")
	require.Error(t, err)
}
