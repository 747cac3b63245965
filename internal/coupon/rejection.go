package coupon

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// ErrEmptyCart is returned when a coupon is applied to an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

// ErrNotApplied is returned when the session has no coupon.
var ErrNotApplied = errors.New("no coupon applied")

// Rejection is a coupon refused by the store API or the local engine.
type Rejection struct {
	Reason  Reason
	Message string
	Err     error
}

func (r *Rejection) Error() string {
	if r.Message != "" {
		return r.Message
	}
	return string(r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Err }

// rejectionFromAPI turns a store API refusal into a Rejection. Transport
// failures, 5xx and auth errors are not coupon rejections and are returned
// unchanged.
func rejectionFromAPI(err error) error {
	var apiErr *storeapi.APIError
	if !errors.As(err, &apiErr) || apiErr.Temporary() {
		return err
	}
	switch apiErr.Status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return err
	case http.StatusNotFound:
		return &Rejection{Reason: ReasonNotFound, Message: messageOr(apiErr.Message, "coupon not found"), Err: err}
	}
	msg := strings.ToLower(apiErr.Message)
	rej := &Rejection{Reason: ReasonRejected, Message: messageOr(apiErr.Message, "coupon rejected"), Err: err}
	switch {
	case strings.Contains(msg, "expired"):
		rej.Reason, rej.Err = ReasonExpired, ErrCouponExpired
	case strings.Contains(msg, "inactive"), strings.Contains(msg, "not active"):
		rej.Reason, rej.Err = ReasonInactive, ErrCouponInactive
	case strings.Contains(msg, "minimum"):
		rej.Reason, rej.Err = ReasonMinPurchaseUnmet, ErrCouponMinPurchaseNotMet
	case strings.Contains(msg, "usage"), strings.Contains(msg, "limit"):
		rej.Reason, rej.Err = ReasonUsageExceeded, ErrCouponUsageExceeded
	case strings.Contains(msg, "not found"), strings.Contains(msg, "invalid coupon"):
		rej.Reason = ReasonNotFound
	}
	return rej
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
