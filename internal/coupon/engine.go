package coupon

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrCouponInactive is returned when the coupon has been switched off.
	ErrCouponInactive = errors.New("coupon not active")
	// ErrCouponExpired is returned when the coupon is past its valid-until instant.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageExceeded indicates the coupon has exhausted its usage quota.
	ErrCouponUsageExceeded = errors.New("coupon usage limit reached")
	// ErrCouponMinPurchaseNotMet indicates the subtotal is below the coupon minimum.
	ErrCouponMinPurchaseNotMet = errors.New("coupon minimum purchase not met")
)

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
)

// Reason is a stable machine-readable code for a coupon outcome.
type Reason string

const (
	ReasonInactive         Reason = "COUPON_INACTIVE"
	ReasonExpired          Reason = "COUPON_EXPIRED"
	ReasonUsageExceeded    Reason = "COUPON_USAGE_EXCEEDED"
	ReasonMinPurchaseUnmet Reason = "COUPON_MIN_PURCHASE_NOT_MET"
	ReasonNotFound         Reason = "COUPON_NOT_FOUND"
	ReasonRejected         Reason = "COUPON_REJECTED"
)

// Coupon captures the runtime constraints of a discount code.
type Coupon struct {
	ID                string           `json:"id,omitempty"`
	Code              string           `json:"code"`
	Description       string           `json:"description,omitempty"`
	DiscountType      DiscountType     `json:"discountType"`
	DiscountValue     decimal.Decimal  `json:"discountValue"`
	MinPurchaseAmount decimal.Decimal  `json:"minPurchaseAmount"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount,omitempty"`
	UsageLimit        *int             `json:"usageLimit,omitempty"`
	UsedCount         int              `json:"usedCount"`
	ValidUntil        time.Time        `json:"validUntil,omitempty"`
	IsActive          bool             `json:"isActive"`
}

// Result is the outcome of evaluating a coupon against a subtotal.
type Result struct {
	Valid    bool            `json:"valid"`
	Reason   Reason          `json:"reason,omitempty"`
	Discount decimal.Decimal `json:"discount"`
}

var hundred = decimal.NewFromInt(100)

// NormalizeCode canonicalises user input before lookup.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate ensures the coupon can be applied at now for the given subtotal.
// Checks run in a fixed order so the first failing constraint is reported.
func Validate(c Coupon, subtotal decimal.Decimal, now time.Time) error {
	if !c.IsActive {
		return ErrCouponInactive
	}
	if !c.ValidUntil.IsZero() && now.After(c.ValidUntil) {
		return ErrCouponExpired
	}
	if c.UsageLimit != nil && *c.UsageLimit > 0 && c.UsedCount >= *c.UsageLimit {
		return ErrCouponUsageExceeded
	}
	if subtotal.LessThan(c.MinPurchaseAmount) {
		return ErrCouponMinPurchaseNotMet
	}
	return nil
}

// Discount determines the discount amount for subtotal, clamped to
// [0, subtotal]. It does not validate the coupon.
func Discount(c Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch c.DiscountType.normalized() {
	case Percentage:
		discount = subtotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscountAmount != nil && discount.GreaterThan(*c.MaxDiscountAmount) {
			discount = *c.MaxDiscountAmount
		}
	case Fixed:
		discount = c.DiscountValue
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// Evaluate validates c and, when valid, computes its discount.
func Evaluate(c Coupon, subtotal decimal.Decimal, now time.Time) Result {
	if err := Validate(c, subtotal, now); err != nil {
		return Result{Reason: ReasonFor(err), Discount: decimal.Zero}
	}
	return Result{Valid: true, Discount: Discount(c, subtotal)}
}

// ReasonFor maps engine errors to their stable reason code.
func ReasonFor(err error) Reason {
	var rej *Rejection
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rej):
		return rej.Reason
	case errors.Is(err, ErrCouponInactive):
		return ReasonInactive
	case errors.Is(err, ErrCouponExpired):
		return ReasonExpired
	case errors.Is(err, ErrCouponUsageExceeded):
		return ReasonUsageExceeded
	case errors.Is(err, ErrCouponMinPurchaseNotMet):
		return ReasonMinPurchaseUnmet
	default:
		return ReasonRejected
	}
}

func (t DiscountType) normalized() DiscountType {
	switch strings.ToLower(strings.TrimSpace(string(t))) {
	case "percentage", "percent":
		return Percentage
	case "fixed", "flat", "amount":
		return Fixed
	default:
		return t
	}
}
