package checkout

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/currency"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/coupon"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/order"
	"github.com/noah-isme/toko-storefront/internal/payment"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

type fakeOrders struct {
	mu    sync.Mutex
	calls []storeapi.NewOrder
	token string
	err   error
}

func (f *fakeOrders) CreateOrder(_ context.Context, token string, in storeapi.NewOrder) (storeapi.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return storeapi.Order{}, f.err
	}
	f.calls = append(f.calls, in)
	f.token = token
	return storeapi.Order{ID: "ord-1", OrderStatus: "Processing"}, nil
}

type fakeCoupons struct {
	applied    *coupon.Applied
	revalidate error
	removed    bool
}

func (f *fakeCoupons) Current(context.Context, string) (*coupon.Applied, error) {
	if f.applied == nil {
		return nil, coupon.ErrNotApplied
	}
	return f.applied, nil
}

func (f *fakeCoupons) Revalidate(context.Context, string, string, decimal.Decimal) (*coupon.Applied, error) {
	if f.revalidate != nil {
		f.applied = nil
		return nil, f.revalidate
	}
	return f.applied, nil
}

func (f *fakeCoupons) Preview(a coupon.Applied, subtotal decimal.Decimal, _ time.Time) coupon.Preview {
	return coupon.Preview{Code: a.Coupon.Code, Valid: true, Discount: a.Discount, ServerDiscount: a.Discount}
}

func (f *fakeCoupons) Remove(context.Context, string) error {
	f.removed = true
	f.applied = nil
	return nil
}

type fakeProvider struct {
	req payment.IntentRequest
	err error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.IntentResponse, error) {
	f.req = req
	if f.err != nil {
		return payment.IntentResponse{}, f.err
	}
	return payment.IntentResponse{Provider: "fake", IntentID: "pi_1", ClientSecret: "secret", Status: "requires_payment_method", Amount: req.Amount, Currency: req.Currency}, nil
}

func (f *fakeProvider) VerifyWebhook(*http.Request, []byte) (payment.WebhookVerifyResult, error) {
	return payment.WebhookVerifyResult{}, nil
}

type fakeTasks struct{ ids []string }

func (f *fakeTasks) EnqueueReconcile(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return nil
}

type fixture struct {
	svc       *Service
	carts     cart.RedisStore
	orders    *fakeOrders
	coupons   *fakeCoupons
	snapshots *order.MemoryStore
	payments  *fakeProvider
	tasks     *fakeTasks
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		carts:     cart.RedisStore{R: client, TTL: time.Hour},
		orders:    &fakeOrders{},
		coupons:   &fakeCoupons{},
		snapshots: order.NewMemoryStore(),
		payments:  &fakeProvider{},
		tasks:     &fakeTasks{},
	}
	f.svc = &Service{
		Carts:     f.carts,
		Coupons:   f.coupons,
		API:       f.orders,
		Snapshots: f.snapshots,
		Payments:  f.payments,
		Tasks:     f.tasks,
		Locker:    lock.Locker{R: client, RetryBackoff: time.Millisecond, WaitTimeout: time.Second},
		LockTTL:   5 * time.Second,
		Policy: pricing.Policy{
			TaxRate:               decimal.RequireFromString("0.18"),
			FreeShippingThreshold: decimal.NewFromInt(50),
			FlatShippingFee:       decimal.NewFromInt(2),
		},
		Currency: currency.USD,
		Logger:   zerolog.Nop(),
	}
	return f
}

func (f *fixture) seedCart(t *testing.T, session string) {
	t.Helper()
	c := cart.Cart{Items: []cart.LineItem{
		{Product: cart.Product{ID: "p1", Name: "Mug", Price: decimal.RequireFromString("29.99"), Stock: 3, Images: []string{"https://img/mug"}}, Quantity: 1},
		{Product: cart.Product{ID: "p2", Name: "Cap", Price: decimal.RequireFromString("15.64"), Stock: 10}, Quantity: 2},
	}}
	require.NoError(t, f.carts.Save(context.Background(), session, c))
}

func save10() *coupon.Applied {
	return &coupon.Applied{
		Coupon:   coupon.Coupon{Code: "SAVE10"},
		Discount: decimal.RequireFromString("6.127"),
		Subtotal: decimal.RequireFromString("61.27"),
	}
}

func TestPlaceOrderSubmitsServerDiscount(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, "s1")
	f.coupons.applied = save10()
	ctx := context.Background()

	res, err := f.svc.PlaceOrder(ctx, "s1", "tok", "user:u1", Input{
		ShippingInfo: storeapi.ShippingInfo{Address: "1 Main", City: "Austin", Country: "US", PinCode: "73301", PhoneNo: "5550100"},
	})
	require.NoError(t, err)
	require.Equal(t, "ord-1", res.OrderID)
	require.Equal(t, "SAVE10", res.CouponCode)
	require.True(t, res.Breakdown.Total.Equal(decimal.RequireFromString("66.1716")))
	require.Equal(t, "66.17", res.Display.Total)

	require.Len(t, f.orders.calls, 1)
	sent := f.orders.calls[0]
	require.Equal(t, "tok", f.orders.token)
	require.Equal(t, 61.27, sent.ItemsPrice)
	require.Equal(t, 11.03, sent.TaxPrice)
	require.Equal(t, 6.13, sent.Discount)
	require.Equal(t, 66.17, sent.TotalPrice)
	require.Equal(t, "SAVE10", sent.CouponCode)
	require.Equal(t, "https://img/mug", sent.OrderItems[0].Image)
	require.Equal(t, "card", sent.PaymentInfo.Method)
	require.Equal(t, "pending", sent.PaymentInfo.Status)

	require.Equal(t, int64(6617), f.payments.req.Amount)
	require.Equal(t, "order:ord-1", f.payments.req.IdempotencyKey)
	require.NotNil(t, res.Payment)
	require.Equal(t, "pi_1", res.Payment.IntentID)

	left, err := f.carts.Load(ctx, "s1")
	require.NoError(t, err)
	require.True(t, left.Empty())
	require.True(t, f.coupons.removed)

	require.NotEmpty(t, res.SnapshotID)
	snap, err := f.snapshots.Get(ctx, res.SnapshotID)
	require.NoError(t, err)
	require.Equal(t, "user:u1", snap.Owner)
	require.Equal(t, "ord-1", snap.RemoteOrderID)
	require.Equal(t, "pi_1", snap.PaymentRef)
	require.Len(t, snap.Items, 2)
	require.Equal(t, []string{res.SnapshotID}, f.tasks.ids)
}

func TestPlaceOrderWireTotalMatchesRoundedParts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := cart.Cart{Items: []cart.LineItem{
		{Product: cart.Product{ID: "p1", Name: "Pin", Price: decimal.RequireFromString("10.25"), Stock: 5}, Quantity: 1},
	}}
	require.NoError(t, f.carts.Save(ctx, "s1", c))
	f.coupons.applied = &coupon.Applied{
		Coupon:   coupon.Coupon{Code: "FIVE"},
		Discount: decimal.RequireFromString("0.5125"),
		Subtotal: decimal.RequireFromString("10.25"),
	}

	res, err := f.svc.PlaceOrder(ctx, "s1", "tok", "user:u1", Input{})
	require.NoError(t, err)
	// 10.25 + 1.845 + 2 - 0.5125 rounds to 13.58, the rounded parts to 13.59.
	require.True(t, res.Breakdown.Total.Equal(decimal.RequireFromString("13.5825")))

	sent := f.orders.calls[0]
	require.Equal(t, 10.25, sent.ItemsPrice)
	require.Equal(t, 1.85, sent.TaxPrice)
	require.Equal(t, 2.0, sent.ShippingPrice)
	require.Equal(t, 0.51, sent.Discount)
	require.Equal(t, 13.59, sent.TotalPrice)
	require.Equal(t, int64(1359), f.payments.req.Amount)
}

func TestPlaceOrderCapsServerDiscountAtSubtotal(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, "s1")
	f.coupons.applied = &coupon.Applied{
		Coupon:   coupon.Coupon{Code: "BIG"},
		Discount: decimal.NewFromInt(100),
		Subtotal: decimal.RequireFromString("61.27"),
	}

	res, err := f.svc.PlaceOrder(context.Background(), "s1", "tok", "user:u1", Input{})
	require.NoError(t, err)
	require.True(t, res.Breakdown.Discount.Equal(decimal.RequireFromString("61.27")))

	sent := f.orders.calls[0]
	require.Equal(t, 61.27, sent.ItemsPrice)
	require.Equal(t, 61.27, sent.Discount)
	require.Equal(t, 11.03, sent.TotalPrice)
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), "s1", "tok", "user:u1", Input{})
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Empty(t, f.orders.calls)
}

func TestPlaceOrderRejectedCouponKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, "s1")
	f.coupons.applied = save10()
	f.coupons.revalidate = &coupon.Rejection{Reason: coupon.ReasonExpired, Message: "Coupon has expired"}
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, "s1", "tok", "user:u1", Input{})
	require.ErrorIs(t, err, ErrCouponNoLongerValid)
	var rej *coupon.Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, coupon.ReasonExpired, rej.Reason)
	require.Empty(t, f.orders.calls)

	left, err := f.carts.Load(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, 3, left.Count())
}

func TestPlaceOrderUpstreamFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, "s1")
	f.orders.err = &storeapi.APIError{Op: "create_order", Status: http.StatusBadGateway, Message: "down"}
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, "s1", "tok", "user:u1", Input{})
	require.Equal(t, http.StatusBadGateway, storeapi.StatusOf(err))

	left, err := f.carts.Load(ctx, "s1")
	require.NoError(t, err)
	require.False(t, left.Empty())
	require.Empty(t, f.tasks.ids)
}

func TestPlaceOrderPaymentFailureIsSoft(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, "s1")
	f.payments.err = errors.New("card network down")

	res, err := f.svc.PlaceOrder(context.Background(), "s1", "tok", "user:u1", Input{})
	require.NoError(t, err)
	require.Nil(t, res.Payment)

	snap, err := f.snapshots.Get(context.Background(), res.SnapshotID)
	require.NoError(t, err)
	require.Equal(t, "intent_failed", snap.PaymentStatus)
}

func TestPlaceOrderWithoutOptionalCollaborators(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, "s1")
	f.svc.Payments = nil
	f.svc.Tasks = nil
	f.svc.Snapshots = nil
	f.svc.Coupons = nil

	res, err := f.svc.PlaceOrder(context.Background(), "s1", "tok", "", Input{})
	require.NoError(t, err)
	require.Empty(t, res.SnapshotID)
	require.Nil(t, res.Payment)
	require.True(t, res.Breakdown.Total.Equal(decimal.RequireFromString("72.2986")))
}

func TestQuoteIncludesCouponPreview(t *testing.T) {
	f := newFixture(t)
	f.seedCart(t, "s1")
	f.coupons.applied = save10()

	q, err := f.svc.Quote(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, q.Items, 2)
	require.NotNil(t, q.Coupon)
	require.Equal(t, "SAVE10", q.Coupon.Code)
	require.Equal(t, "66.17", q.Display.Total)

	empty, err := f.svc.Quote(context.Background(), "s2")
	require.NoError(t, err)
	require.NotNil(t, empty.Items)
	require.Nil(t, empty.Coupon)
}
