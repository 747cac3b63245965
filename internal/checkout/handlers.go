package checkout

import (
	"errors"
	"net/http"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/order"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// Handler exposes checkout operations over HTTP.
type Handler struct {
	Svc *Service
}

// Quote returns the priced cart as it would be submitted.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	q, err := h.Svc.Quote(r.Context(), session)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, q)
}

// Checkout places the order for the session cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	token, ok := common.AccessToken(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required to place an order", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Svc.PlaceOrder(r.Context(), session, token, order.Owner(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, res)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return "", false
	}
	session, ok := common.SessionID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "session not resolved", nil)
		return "", false
	}
	return session, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "CART_EMPTY", err.Error(), nil)
		return
	case errors.Is(err, ErrCouponNoLongerValid):
		common.JSONError(w, http.StatusConflict, "COUPON_NO_LONGER_VALID", err.Error(), nil)
		return
	case errors.Is(err, lock.ErrBusy):
		common.JSONError(w, http.StatusConflict, "BUSY", "another request is updating this cart", nil)
		return
	}
	if common.WriteAppError(w, err) || storeapi.WriteError(w, err) {
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to place order", nil)
}
