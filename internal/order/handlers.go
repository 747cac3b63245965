package order

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

// RemoteOrders is the store API surface for the caller's orders.
type RemoteOrders interface {
	Order(ctx context.Context, token, id string) (storeapi.Order, error)
	MyOrders(ctx context.Context, token string) ([]storeapi.Order, error)
}

// Handler serves snapshot history and proxies remote orders.
type Handler struct {
	Store Store
	API   RemoteOrders
}

// Owner is the key snapshots are filed under: the user id when signed in,
// otherwise the storefront session.
func Owner(ctx context.Context) string {
	if uid, ok := common.UserID(ctx); ok {
		return "user:" + uid
	}
	if sid, ok := common.SessionID(ctx); ok {
		return "session:" + sid
	}
	return ""
}

// ListLocal returns the caller's order snapshots.
func (h *Handler) ListLocal(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	owner := Owner(r.Context())
	if owner == "" {
		common.JSONError(w, http.StatusBadRequest, "SESSION_REQUIRED", "session not resolved", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	snaps, total, err := h.Store.ListByOwner(r.Context(), owner, perPage, common.Offset(page, perPage))
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": snaps,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: total,
		},
	})
}

// ListRemote proxies the caller's orders from the store API.
func (h *Handler) ListRemote(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	orders, err := h.API.MyOrders(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if orders == nil {
		orders = []storeapi.Order{}
	}
	common.Data(w, http.StatusOK, orders)
}

// GetRemote proxies a single order from the store API.
func (h *Handler) GetRemote(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	o, err := h.API.Order(r.Context(), token, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, o)
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.API == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "store api not configured", nil)
		return "", false
	}
	token, ok := common.AccessToken(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return "", false
	}
	return token, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if storeapi.WriteError(w, err) {
		return
	}
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order request failed", nil)
}
