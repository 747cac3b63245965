package coupon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/cache"
	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// driftTolerance is the largest local/server discount gap that is not reported.
var driftTolerance = decimal.RequireFromString("0.01")

// API is the subset of the store API used for coupons.
type API interface {
	ValidateCoupon(ctx context.Context, token, code string, cartTotal decimal.Decimal) (storeapi.CouponValidation, error)
	AvailableCoupons(ctx context.Context) ([]storeapi.Coupon, error)
}

// CartReader loads the session cart.
type CartReader interface {
	Get(ctx context.Context, session string) (cart.Cart, error)
}

// Service applies coupons to session carts. The store API decides whether a
// coupon is accepted and how much it takes off; the local engine only
// previews.
type Service struct {
	API     API
	Carts   CartReader
	State   StateStore
	Cache   *cache.JSON
	Locker  cart.Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
	Now     func() time.Time
}

// Preview is the advisory view of an applied coupon against the current cart.
// Stale is set when the cart changed since the server validated the coupon.
type Preview struct {
	Code           string          `json:"code"`
	Valid          bool            `json:"valid"`
	Reason         Reason          `json:"reason,omitempty"`
	Discount       decimal.Decimal `json:"discount"`
	ServerDiscount decimal.Decimal `json:"serverDiscount"`
	Stale          bool            `json:"stale"`
	Message        string          `json:"message,omitempty"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) configured() error {
	if s == nil || s.API == nil || s.Carts == nil || s.State == nil {
		return errors.New("coupon service not configured")
	}
	return nil
}

// Apply validates code with the store API against the session's cart subtotal
// and stores the accepted coupon. Server refusals come back as *Rejection.
func (s *Service) Apply(ctx context.Context, session, token, code string) (Applied, error) {
	if err := s.configured(); err != nil {
		return Applied{}, err
	}
	code = NormalizeCode(code)
	if code == "" {
		return Applied{}, common.BadRequest("VALIDATION_ERROR", "coupon code is required", nil)
	}
	var applied Applied
	err := s.withLock(ctx, session, func(ctx context.Context) error {
		c, err := s.Carts.Get(ctx, session)
		if err != nil {
			return err
		}
		if c.Empty() {
			return ErrEmptyCart
		}
		subtotal := c.Subtotal()
		res, err := s.validate(ctx, token, code, subtotal)
		if err != nil {
			return err
		}
		applied = res
		return s.State.Put(ctx, session, applied)
	})
	switch {
	case err == nil:
		obs.IncCounter(obs.CouponApplyTotal, "applied")
	case errors.As(err, new(*Rejection)):
		obs.IncCounter(obs.CouponApplyTotal, "rejected")
	default:
		obs.IncCounter(obs.CouponApplyTotal, "error")
	}
	return applied, err
}

// Revalidate re-checks the session's applied coupon against subtotal and
// refreshes the stored discount. A coupon the server now refuses is removed
// and its *Rejection returned. It does not take the session lock; callers
// that mutate the cart concurrently must hold it.
func (s *Service) Revalidate(ctx context.Context, session, token string, subtotal decimal.Decimal) (*Applied, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	current, err := s.State.Get(ctx, session)
	if err != nil || current == nil {
		return nil, err
	}
	res, err := s.validate(ctx, token, current.Coupon.Code, subtotal)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			if delErr := s.State.Delete(ctx, session); delErr != nil {
				return nil, delErr
			}
		}
		return nil, err
	}
	if err := s.State.Put(ctx, session, res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Service) validate(ctx context.Context, token, code string, subtotal decimal.Decimal) (Applied, error) {
	v, err := s.API.ValidateCoupon(ctx, token, code, subtotal)
	if err != nil {
		return Applied{}, rejectionFromAPI(err)
	}
	c := FromAPI(v.Coupon)
	if c.Code == "" {
		c.Code = code
	}
	s.checkDrift(c, subtotal, v.Discount)
	return Applied{
		Coupon:     c,
		Discount:   v.Discount,
		FinalTotal: v.FinalTotal,
		Subtotal:   subtotal,
		Message:    v.Message,
		AppliedAt:  s.now().UTC(),
	}, nil
}

func (s *Service) checkDrift(c Coupon, subtotal, server decimal.Decimal) {
	local := Discount(c, subtotal)
	if local.Sub(server).Abs().LessThanOrEqual(driftTolerance) {
		return
	}
	s.Logger.Warn().
		Str("code", c.Code).
		Str("subtotal", subtotal.String()).
		Str("local_discount", local.String()).
		Str("server_discount", server.String()).
		Msg("coupon_discount_drift")
	obs.IncCounter(obs.PricingDriftTotal, "coupon")
}

// Remove forgets the session's coupon.
func (s *Service) Remove(ctx context.Context, session string) error {
	if s == nil || s.State == nil {
		return errors.New("coupon service not configured")
	}
	return s.State.Delete(ctx, session)
}

// Current returns the applied coupon or ErrNotApplied.
func (s *Service) Current(ctx context.Context, session string) (*Applied, error) {
	if s == nil || s.State == nil {
		return nil, errors.New("coupon service not configured")
	}
	a, err := s.State.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotApplied
	}
	return a, nil
}

// Preview evaluates a against subtotal at now. While the subtotal matches the
// validated one the server discount stands and only expiry is checked locally;
// otherwise the local engine decides and the result is marked stale until the
// next server check.
func (s *Service) Preview(a Applied, subtotal decimal.Decimal, now time.Time) Preview {
	p := Preview{Code: a.Coupon.Code, ServerDiscount: a.Discount, Message: a.Message, Discount: decimal.Zero}
	if subtotal.Equal(a.Subtotal) {
		if !a.Coupon.ValidUntil.IsZero() && now.After(a.Coupon.ValidUntil) {
			p.Reason = ReasonExpired
			return p
		}
		p.Valid = true
		p.Discount = a.Discount
		return p
	}
	p.Stale = true
	res := Evaluate(a.Coupon, subtotal, now)
	if !res.Valid {
		p.Reason = res.Reason
		return p
	}
	p.Valid = true
	p.Discount = res.Discount
	return p
}

// Summary satisfies cart.CouponView.
func (s *Service) Summary(ctx context.Context, session string, subtotal decimal.Decimal) (any, decimal.Decimal, error) {
	a, err := s.Current(ctx, session)
	if errors.Is(err, ErrNotApplied) {
		return nil, decimal.Zero, nil
	}
	if err != nil {
		return nil, decimal.Zero, err
	}
	p := s.Preview(*a, subtotal, s.now())
	return p, p.Discount, nil
}

// Available lists the coupons on offer, served from cache when possible.
func (s *Service) Available(ctx context.Context) ([]Coupon, error) {
	var cached []Coupon
	if ok, err := s.Cache.Get(ctx, cache.KeyCouponsAvail, &cached); err == nil && ok {
		return cached, nil
	}
	return s.RefreshAvailable(ctx)
}

// RefreshAvailable fetches the coupon list from the store API and replaces
// the cached copy.
func (s *Service) RefreshAvailable(ctx context.Context) ([]Coupon, error) {
	if s == nil || s.API == nil {
		return nil, errors.New("coupon service not configured")
	}
	list, err := s.API.AvailableCoupons(ctx)
	if err != nil {
		return nil, fmt.Errorf("available coupons: %w", err)
	}
	out := FromAPIList(list)
	if err := s.Cache.Set(ctx, cache.KeyCouponsAvail, out); err != nil {
		s.Logger.Warn().Err(err).Msg("coupon_cache_write_failed")
	}
	return out, nil
}

func (s *Service) withLock(ctx context.Context, session string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	return s.Locker.WithLock(ctx, cart.SessionLockKey(session), s.LockTTL, fn)
}

// statusFor maps coupon errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	var rej *Rejection
	switch {
	case errors.As(err, &rej):
		return http.StatusUnprocessableEntity, string(rej.Reason)
	case errors.Is(err, ErrEmptyCart):
		return http.StatusUnprocessableEntity, "CART_EMPTY"
	case errors.Is(err, ErrNotApplied):
		return http.StatusNotFound, "COUPON_NOT_APPLIED"
	default:
		return 0, ""
	}
}
