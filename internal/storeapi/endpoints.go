package storeapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// Products lists products. query is passed through (keyword, category,
// price[gte], price[lte], ratings[gte], page).
func (c *Client) Products(ctx context.Context, query url.Values) (ProductPage, error) {
	var out ProductPage
	err := c.call(ctx, request{op: "products", method: http.MethodGet, path: "/product/all", query: query}, &out)
	return out, err
}

// Product fetches a single product.
func (c *Client) Product(ctx context.Context, id string) (Product, error) {
	var out struct {
		Product Product `json:"product"`
	}
	err := c.call(ctx, request{op: "product", method: http.MethodGet, path: "/product/" + url.PathEscape(id)}, &out)
	return out.Product, err
}

// Categories lists the category names.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	var out struct {
		Categories []string `json:"categories"`
	}
	err := c.call(ctx, request{op: "categories", method: http.MethodGet, path: "/product/categories"}, &out)
	return out.Categories, err
}

// Search runs the keyword search endpoint.
func (c *Client) Search(ctx context.Context, query url.Values) (ProductPage, error) {
	var out ProductPage
	err := c.call(ctx, request{op: "search", method: http.MethodGet, path: "/product/search", query: query}, &out)
	return out, err
}

// AISearch forwards a natural-language search. The response shape is owned
// by the upstream AI service so it is returned raw.
func (c *Client) AISearch(ctx context.Context, body []byte) (RawResponse, error) {
	return c.Forward(ctx, http.MethodPost, "/product/ai-search", nil, "", body)
}

// PostReview creates or replaces the caller's review of productID.
func (c *Client) PostReview(ctx context.Context, token, productID string, in ReviewInput) error {
	return c.call(ctx, request{
		op: "review_post", method: http.MethodPut,
		path: "/product/review/post/" + url.PathEscape(productID), token: token, body: in,
	}, nil)
}

// DeleteReview removes the caller's review of productID.
func (c *Client) DeleteReview(ctx context.Context, token, productID string) error {
	return c.call(ctx, request{
		op: "review_delete", method: http.MethodDelete,
		path: "/product/review/delete/" + url.PathEscape(productID), token: token,
	}, nil)
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, in Credentials) (AuthResult, error) {
	var out AuthResult
	err := c.call(ctx, request{op: "login", method: http.MethodPost, path: "/auth/login", body: in}, &out)
	return out, err
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, in Registration) (AuthResult, error) {
	var out AuthResult
	err := c.call(ctx, request{op: "register", method: http.MethodPost, path: "/auth/register", body: in}, &out)
	return out, err
}

// Logout ends the upstream session for token.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.call(ctx, request{op: "logout", method: http.MethodPost, path: "/auth/logout", token: token}, nil)
}

// Me returns the account behind token.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var out struct {
		User User `json:"user"`
	}
	err := c.call(ctx, request{op: "me", method: http.MethodGet, path: "/auth/me", token: token}, &out)
	return out.User, err
}

// CreateOrder submits an order.
func (c *Client) CreateOrder(ctx context.Context, token string, in NewOrder) (Order, error) {
	var out struct {
		Order Order `json:"order"`
	}
	err := c.call(ctx, request{op: "order_create", method: http.MethodPost, path: "/order/new", token: token, body: in}, &out)
	return out.Order, err
}

// Order fetches a single order.
func (c *Client) Order(ctx context.Context, token, id string) (Order, error) {
	var out struct {
		Order Order `json:"order"`
	}
	err := c.call(ctx, request{op: "order_get", method: http.MethodGet, path: "/order/" + url.PathEscape(id), token: token}, &out)
	return out.Order, err
}

// MyOrders lists the orders of the account behind token.
func (c *Client) MyOrders(ctx context.Context, token string) ([]Order, error) {
	var out struct {
		Orders []Order `json:"orders"`
	}
	err := c.call(ctx, request{op: "orders_me", method: http.MethodGet, path: "/order/orders/me", token: token}, &out)
	return out.Orders, err
}

// ValidateCoupon asks the store API to validate code against cartTotal. The
// answer is authoritative for the discount.
func (c *Client) ValidateCoupon(ctx context.Context, token, code string, cartTotal decimal.Decimal) (CouponValidation, error) {
	body := struct {
		Code      string  `json:"code"`
		CartTotal float64 `json:"cart_total"`
	}{Code: code, CartTotal: cartTotal.InexactFloat64()}
	var out CouponValidation
	err := c.call(ctx, request{op: "coupon_validate", method: http.MethodPost, path: "/coupon/validate", token: token, body: body}, &out)
	return out, err
}

// AvailableCoupons lists the coupons currently offered to shoppers.
func (c *Client) AvailableCoupons(ctx context.Context) ([]Coupon, error) {
	var out struct {
		Coupons []Coupon `json:"coupons"`
	}
	err := c.call(ctx, request{op: "coupons_available", method: http.MethodGet, path: "/coupon/available"}, &out)
	return out.Coupons, err
}
