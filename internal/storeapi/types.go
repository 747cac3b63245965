package storeapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// Image is a product image reference.
type Image struct {
	PublicID string `json:"public_id,omitempty"`
	URL      string `json:"url"`
}

// Review is a customer review attached to a product.
type Review struct {
	ID      string  `json:"_id,omitempty"`
	User    string  `json:"user,omitempty"`
	Name    string  `json:"name,omitempty"`
	Rating  float64 `json:"rating"`
	Comment string  `json:"comment,omitempty"`
}

// Product mirrors the store API product document. Price is decoded exactly
// from the JSON number.
type Product struct {
	ID           string          `json:"_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Stock        int             `json:"stock"`
	Category     string          `json:"category,omitempty"`
	Ratings      float64         `json:"ratings,omitempty"`
	NumOfReviews int             `json:"numOfReviews,omitempty"`
	Images       []Image         `json:"images,omitempty"`
	Reviews      []Review        `json:"reviews,omitempty"`
}

// ProductPage is the response of the product listing and search endpoints.
type ProductPage struct {
	Products              []Product `json:"products"`
	ProductsCount         int       `json:"productsCount,omitempty"`
	ResultPerPage         int       `json:"resultPerPage,omitempty"`
	FilteredProductsCount int       `json:"filteredProductsCount,omitempty"`
}

// ReviewInput is the body of a review submission.
type ReviewInput struct {
	Rating  float64 `json:"rating" validate:"gte=1,lte=5"`
	Comment string  `json:"comment" validate:"max=2000"`
}

// User is the authenticated account as returned by the auth endpoints.
type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	Avatar *Image `json:"avatar,omitempty"`
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration is the sign-up payload.
type Registration struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// AuthResult carries the account and bearer token issued by login or register.
type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// ShippingInfo is the delivery address attached to an order.
type ShippingInfo struct {
	Address  string `json:"address" validate:"required"`
	City     string `json:"city" validate:"required"`
	State    string `json:"state,omitempty"`
	Country  string `json:"country" validate:"required"`
	PinCode  string `json:"pinCode" validate:"required"`
	PhoneNo  string `json:"phoneNo" validate:"required"`
	FullName string `json:"fullName,omitempty"`
}

// PaymentInfo describes how the order was paid.
type PaymentInfo struct {
	ID     string `json:"id,omitempty"`
	Method string `json:"method,omitempty"`
	Status string `json:"status"`
}

// OrderItem is one line of a submitted order. Amounts are JSON numbers.
type OrderItem struct {
	Product  string  `json:"product"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image,omitempty"`
}

// NewOrder is the body of POST /order/new.
type NewOrder struct {
	OrderItems    []OrderItem  `json:"order_items"`
	ShippingInfo  ShippingInfo `json:"shipping_info"`
	ItemsPrice    float64      `json:"items_price"`
	TaxPrice      float64      `json:"tax_price"`
	ShippingPrice float64      `json:"shipping_price"`
	Discount      float64      `json:"discount"`
	CouponCode    string       `json:"coupon_code,omitempty"`
	TotalPrice    float64      `json:"total_price"`
	PaymentInfo   PaymentInfo  `json:"payment_info"`
}

// Order is an order document as stored by the store API.
type Order struct {
	ID            string          `json:"_id"`
	OrderItems    []OrderItem     `json:"order_items,omitempty"`
	ShippingInfo  *ShippingInfo   `json:"shipping_info,omitempty"`
	ItemsPrice    decimal.Decimal `json:"items_price"`
	TaxPrice      decimal.Decimal `json:"tax_price"`
	ShippingPrice decimal.Decimal `json:"shipping_price"`
	Discount      decimal.Decimal `json:"discount"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	OrderStatus   string          `json:"orderStatus,omitempty"`
	PaymentInfo   *PaymentInfo    `json:"payment_info,omitempty"`
	CreatedAt     time.Time       `json:"createdAt,omitempty"`
}

// Coupon is the store API coupon document.
type Coupon struct {
	ID                string           `json:"_id,omitempty"`
	Code              string           `json:"code"`
	Description       string           `json:"description,omitempty"`
	DiscountType      string           `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MinPurchaseAmount decimal.Decimal  `json:"min_purchase_amount"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	UsageLimit        *int             `json:"usage_limit,omitempty"`
	UsedCount         int              `json:"used_count"`
	ValidUntil        *time.Time       `json:"valid_until,omitempty"`
	IsActive          bool             `json:"is_active"`
}

// CouponValidation is the authoritative answer of POST /coupon/validate.
type CouponValidation struct {
	Coupon     Coupon          `json:"coupon"`
	Discount   decimal.Decimal `json:"discount"`
	FinalTotal decimal.Decimal `json:"final_total"`
	Message    string          `json:"message,omitempty"`
}

// RawResponse is an upstream response forwarded without interpretation.
type RawResponse struct {
	Status      int
	ContentType string
	Body        []byte
}
