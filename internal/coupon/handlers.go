package coupon

import (
	"errors"
	"net/http"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// Handler exposes coupon application over HTTP.
type Handler struct {
	Svc *Service
}

type applyRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// Apply validates a coupon with the store API and attaches it to the session.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	session, _ := common.SessionID(r.Context())
	token, _ := common.AccessToken(r.Context())
	var req applyRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	applied, err := h.Svc.Apply(r.Context(), session, token, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, applied)
}

// Current returns the applied coupon with a preview for the current cart.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	session, _ := common.SessionID(r.Context())
	applied, err := h.Svc.Current(r.Context(), session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.Svc.Carts.Get(r.Context(), session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"applied": applied,
		"preview": h.Svc.Preview(*applied, c.Subtotal(), h.Svc.now()),
	})
}

// Remove detaches the coupon from the session.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	session, _ := common.SessionID(r.Context())
	if err := h.Svc.Remove(r.Context(), session); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Available lists the coupons currently on offer.
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	list, err := h.Svc.Available(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, list)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if status, code := statusFor(err); status != 0 {
		common.JSONError(w, status, code, err.Error(), nil)
		return
	}
	if common.WriteAppError(w, err) || storeapi.WriteError(w, err) {
		return
	}
	if errors.Is(err, lock.ErrBusy) {
		common.JSONError(w, http.StatusConflict, "BUSY", "another request is updating this cart", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon request failed", nil)
}
