package catalog

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/storeapi"
)

const maxSearchBody = 16 << 10

// Handler exposes public catalog endpoints and review writes.
type Handler struct {
	Svc *Service
}

// Products handles GET /products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	query, err := ParseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.Svc.Products(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, list)
}

// Search handles GET /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	query, err := ParseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	if q := r.URL.Query().Get("q"); q != "" && query.Get("keyword") == "" {
		query.Set("keyword", q)
	}
	list, err := h.Svc.Search(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeList(w, list)
}

// Product handles GET /products/{id}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	p, err := h.Svc.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, p)
}

// Categories handles GET /categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	list, err := h.Svc.Categories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, list)
}

// AISearch handles POST /products/ai-search. The upstream answer is relayed
// verbatim.
func (h *Handler) AISearch(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w) {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSearchBody+1))
	if err != nil || len(body) > maxSearchBody {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid search payload", nil)
		return
	}
	res, err := h.Svc.AISearch(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Raw(w, res.Status, res.ContentType, res.Body)
}

// PutReview handles PUT /products/{id}/reviews.
func (h *Handler) PutReview(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	var in storeapi.ReviewInput
	if err := common.DecodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Svc.PutReview(r.Context(), token, chi.URLParam(r, "id"), in); err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"message": "review saved"})
}

// DeleteReview handles DELETE /products/{id}/reviews.
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	if err := h.Svc.DeleteReview(r.Context(), token, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !h.configured(w) {
		return "", false
	}
	token, ok := common.AccessToken(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "login required", nil)
		return "", false
	}
	return token, true
}

func (h *Handler) configured(w http.ResponseWriter) bool {
	if h.Svc == nil || h.Svc.API == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return false
	}
	return true
}

func writeList(w http.ResponseWriter, list ProductList) {
	w.Header().Set("X-Total-Count", strconv.Itoa(list.Total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": list.Items,
		"pagination": common.Pagination{
			Page:       list.Page,
			PerPage:    list.PerPage,
			TotalItems: list.Filtered,
			TotalPages: list.TotalPages,
		},
	})
}

func writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) || storeapi.WriteError(w, err) {
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
