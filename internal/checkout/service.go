package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/coupon"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/order"
	"github.com/noah-isme/toko-storefront/internal/payment"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

var (
	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCouponNoLongerValid is returned when the applied coupon was refused
	// at order time. The coupon has been removed from the session.
	ErrCouponNoLongerValid = errors.New("applied coupon is no longer valid")
)

// OrderAPI submits orders to the store API.
type OrderAPI interface {
	CreateOrder(ctx context.Context, token string, in storeapi.NewOrder) (storeapi.Order, error)
}

// Coupons is the coupon state the checkout consults.
type Coupons interface {
	Current(ctx context.Context, session string) (*coupon.Applied, error)
	Revalidate(ctx context.Context, session, token string, subtotal decimal.Decimal) (*coupon.Applied, error)
	Preview(a coupon.Applied, subtotal decimal.Decimal, now time.Time) coupon.Preview
	Remove(ctx context.Context, session string) error
}

// Enqueuer schedules background reconciliation of a placed order.
type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, snapshotID string) error
}

// Service prices and places orders for a session.
type Service struct {
	Carts     cart.Store
	Coupons   Coupons
	API       OrderAPI
	Snapshots order.Store
	Payments  payment.Provider
	Tasks     Enqueuer
	Locker    cart.Locker
	LockTTL   time.Duration
	Policy    pricing.Policy
	Currency  currency.Unit
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Input is the shopper-supplied part of an order.
type Input struct {
	ShippingInfo  storeapi.ShippingInfo `json:"shippingInfo" validate:"required"`
	PaymentMethod string                `json:"paymentMethod" validate:"omitempty,max=32"`
}

// Quote is the priced cart as checkout would submit it now.
type Quote struct {
	Items     []cart.LineItem          `json:"items"`
	Breakdown pricing.Breakdown        `json:"breakdown"`
	Display   pricing.DisplayBreakdown `json:"display"`
	Coupon    *coupon.Preview          `json:"coupon,omitempty"`
}

// Result describes a placed order.
type Result struct {
	OrderID    string                   `json:"orderId"`
	SnapshotID string                   `json:"snapshotId,omitempty"`
	Status     string                   `json:"status"`
	Breakdown  pricing.Breakdown        `json:"breakdown"`
	Display    pricing.DisplayBreakdown `json:"display"`
	CouponCode string                   `json:"couponCode,omitempty"`
	Payment    *payment.IntentResponse  `json:"payment,omitempty"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Quote prices the session cart with the applied coupon preview.
func (s *Service) Quote(ctx context.Context, session string) (Quote, error) {
	if s == nil || s.Carts == nil {
		return Quote{}, errors.New("checkout service not configured")
	}
	c, err := s.Carts.Load(ctx, session)
	if err != nil {
		return Quote{}, err
	}
	subtotal := c.Subtotal()
	discount := decimal.Zero
	var preview *coupon.Preview
	if s.Coupons != nil && !c.Empty() {
		applied, err := s.Coupons.Current(ctx, session)
		switch {
		case errors.Is(err, coupon.ErrNotApplied):
		case err != nil:
			return Quote{}, err
		default:
			p := s.Coupons.Preview(*applied, subtotal, s.now())
			preview = &p
			discount = p.Discount
		}
	}
	b := pricing.Compute(c.Lines(), discount, s.Policy)
	items := c.Items
	if items == nil {
		items = []cart.LineItem{}
	}
	return Quote{Items: items, Breakdown: b, Display: pricing.Display(b, s.Currency), Coupon: preview}, nil
}

// PlaceOrder submits the session cart to the store API. The discount sent is
// the one the store API confirms at submission time, never the local preview.
func (s *Service) PlaceOrder(ctx context.Context, session, token, owner string, in Input) (Result, error) {
	if s == nil || s.Carts == nil || s.API == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	var res Result
	err := s.withLock(ctx, session, func(ctx context.Context) error {
		var err error
		res, err = s.place(ctx, session, token, owner, in)
		return err
	})
	switch {
	case err == nil:
		obs.IncCounter(obs.CheckoutTotal, "placed")
	case errors.Is(err, ErrCouponNoLongerValid):
		obs.IncCounter(obs.CheckoutTotal, "coupon_invalid")
	case errors.Is(err, ErrEmptyCart):
		obs.IncCounter(obs.CheckoutTotal, "empty_cart")
	default:
		obs.IncCounter(obs.CheckoutTotal, "error")
	}
	return res, err
}

func (s *Service) place(ctx context.Context, session, token, owner string, in Input) (Result, error) {
	logger := obs.LoggerFrom(ctx, s.Logger)
	c, err := s.Carts.Load(ctx, session)
	if err != nil {
		return Result{}, err
	}
	if c.Empty() {
		return Result{}, ErrEmptyCart
	}
	subtotal := c.Subtotal()

	discount := decimal.Zero
	var couponCode string
	if s.Coupons != nil {
		applied, err := s.Coupons.Revalidate(ctx, session, token, subtotal)
		if err != nil {
			var rej *coupon.Rejection
			if errors.As(err, &rej) {
				return Result{}, fmt.Errorf("%w: %w", ErrCouponNoLongerValid, err)
			}
			return Result{}, err
		}
		if applied != nil {
			discount = applied.Discount
			couponCode = applied.Coupon.Code
		}
	}

	b := pricing.Compute(c.Lines(), discount, s.Policy)
	created, err := s.API.CreateOrder(ctx, token, s.newOrder(c, b, couponCode, in))
	if err != nil {
		return Result{}, fmt.Errorf("create order: %w", err)
	}
	res := Result{
		OrderID:    created.ID,
		Status:     created.OrderStatus,
		Breakdown:  b,
		Display:    pricing.Display(b, s.Currency),
		CouponCode: couponCode,
	}
	if res.Status == "" {
		res.Status = order.StatusPlaced
	}

	snap := &order.Snapshot{
		Owner:         owner,
		RemoteOrderID: created.ID,
		Items:         snapshotItems(c),
		Breakdown:     b,
		CouponCode:    couponCode,
		Currency:      s.Currency.String(),
	}
	if s.Payments != nil && b.Total.IsPositive() {
		intent, err := s.Payments.CreateIntent(ctx, payment.IntentRequest{
			OrderID:        created.ID,
			Amount:         pricing.MinorUnits(pricing.Rounded(b, s.Currency).Total, s.Currency),
			Currency:       s.Currency.String(),
			IdempotencyKey: "order:" + created.ID,
			Metadata:       map[string]string{"session_id": session},
		})
		if err != nil {
			obs.IncCounter(obs.PaymentIntentTotal, s.Payments.Name(), "error")
			logger.Error().Err(err).Str("order_id", created.ID).Msg("payment_intent_failed")
			snap.PaymentStatus = "intent_failed"
		} else {
			obs.IncCounter(obs.PaymentIntentTotal, s.Payments.Name(), "created")
			res.Payment = &intent
			snap.PaymentStatus = intent.Status
			snap.PaymentRef = intent.IntentID
		}
	}

	// The order exists remotely from here on; later failures are logged only.
	if err := s.Carts.Delete(ctx, session); err != nil {
		logger.Error().Err(err).Msg("checkout_clear_cart_failed")
	}
	if s.Coupons != nil {
		if err := s.Coupons.Remove(ctx, session); err != nil {
			logger.Error().Err(err).Msg("checkout_clear_coupon_failed")
		}
	}
	if s.Snapshots != nil && owner != "" {
		if err := s.Snapshots.Save(ctx, snap); err != nil {
			logger.Error().Err(err).Str("order_id", created.ID).Msg("order_snapshot_failed")
		} else {
			res.SnapshotID = snap.ID
		}
	}
	if s.Tasks != nil && res.SnapshotID != "" {
		if err := s.Tasks.EnqueueReconcile(ctx, res.SnapshotID); err != nil {
			logger.Warn().Err(err).Str("snapshot_id", res.SnapshotID).Msg("reconcile_enqueue_failed")
		}
	}
	logger.Info().
		Str("order_id", created.ID).
		Str("total", b.Total.String()).
		Str("coupon", couponCode).
		Msg("order_placed")
	return res, nil
}

func (s *Service) newOrder(c cart.Cart, b pricing.Breakdown, couponCode string, in Input) storeapi.NewOrder {
	wire := func(m decimal.Decimal) float64 {
		return pricing.Round(m, s.Currency).InexactFloat64()
	}
	items := make([]storeapi.OrderItem, 0, len(c.Items))
	for _, it := range c.Items {
		item := storeapi.OrderItem{
			Product:  it.Product.ID,
			Name:     it.Product.Name,
			Price:    wire(it.Product.Price),
			Quantity: it.Quantity,
		}
		if len(it.Product.Images) > 0 {
			item.Image = it.Product.Images[0]
		}
		items = append(items, item)
	}
	method := in.PaymentMethod
	if method == "" {
		method = "card"
	}
	rb := pricing.Rounded(b, s.Currency)
	return storeapi.NewOrder{
		OrderItems:    items,
		ShippingInfo:  in.ShippingInfo,
		ItemsPrice:    rb.Subtotal.InexactFloat64(),
		TaxPrice:      rb.Tax.InexactFloat64(),
		ShippingPrice: rb.Shipping.InexactFloat64(),
		Discount:      rb.Discount.InexactFloat64(),
		CouponCode:    couponCode,
		TotalPrice:    rb.Total.InexactFloat64(),
		PaymentInfo:   storeapi.PaymentInfo{Method: method, Status: "pending"},
	}
}

func snapshotItems(c cart.Cart) []order.Item {
	out := make([]order.Item, 0, len(c.Items))
	for _, it := range c.Items {
		item := order.Item{
			ProductID: it.Product.ID,
			Name:      it.Product.Name,
			UnitPrice: it.Product.Price,
			Quantity:  it.Quantity,
		}
		if len(it.Product.Images) > 0 {
			item.Image = it.Product.Images[0]
		}
		out = append(out, item)
	}
	return out
}

func (s *Service) withLock(ctx context.Context, session string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	return s.Locker.WithLock(ctx, cart.SessionLockKey(session), s.LockTTL, fn)
}
