package cart

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// CouponView supplies the applied-coupon preview shown with the cart. view is
// rendered as-is and discount feeds the breakdown.
type CouponView interface {
	Summary(ctx context.Context, session string, subtotal decimal.Decimal) (view any, discount decimal.Decimal, err error)
}

// Handler wires cart services to HTTP.
type Handler struct {
	Svc      *Service
	Coupons  CouponView
	Policy   pricing.Policy
	Currency currency.Unit
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// Get returns cart contents with a pricing preview.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Get(r.Context(), session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, r, http.StatusOK, session, c)
}

// AddItem adds a product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.Svc.Add(r.Context(), session, req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, r, http.StatusOK, session, c)
}

// UpdateItem changes the quantity of a line. Zero removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.Svc.UpdateQuantity(r.Context(), session, chi.URLParam(r, "productId"), *req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, r, http.StatusOK, session, c)
}

// RemoveItem deletes a line from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Remove(r.Context(), session, chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, r, http.StatusOK, session, c)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), session); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return "", false
	}
	session, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "session not resolved", nil)
		return "", false
	}
	return session, true
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, session string, c Cart) {
	subtotal := c.Subtotal()
	discount := decimal.Zero
	var couponView any
	if h.Coupons != nil && !c.Empty() {
		view, d, err := h.Coupons.Summary(r.Context(), session, subtotal)
		if err != nil {
			h.writeError(w, err)
			return
		}
		couponView, discount = view, d
	}
	breakdown := pricing.Compute(c.Lines(), discount, h.Policy)
	items := c.Items
	if items == nil {
		items = []LineItem{}
	}
	common.Data(w, status, map[string]any{
		"items":     items,
		"count":     c.Count(),
		"breakdown": breakdown,
		"display":   pricing.Display(breakdown, h.Currency),
		"coupon":    couponView,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err) || storeapi.WriteError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "INVALID_QUANTITY", err.Error(), nil)
	case errors.Is(err, ErrStockExceeded):
		common.JSONError(w, http.StatusUnprocessableEntity, "STOCK_EXCEEDED", err.Error(), nil)
	case errors.Is(err, ErrOutOfStock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, lock.ErrBusy):
		common.JSONError(w, http.StatusConflict, "BUSY", "another request is updating this cart", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to update cart", nil)
	}
}
