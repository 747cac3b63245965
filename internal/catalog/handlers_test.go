package catalog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/common"
)

func newTestRouter(svc *Service) http.Handler {
	h := &Handler{Svc: svc}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := r.Header.Get("X-Test-Token"); tok != "" {
				r = r.WithContext(common.WithAccessToken(r.Context(), tok))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/products", h.Products)
	r.Post("/products/ai-search", h.AISearch)
	r.Get("/products/{id}", h.Product)
	r.Put("/products/{id}/reviews", h.PutReview)
	r.Delete("/products/{id}/reviews", h.DeleteReview)
	r.Get("/categories", h.Categories)
	r.Get("/search", h.Search)
	return r
}

func serve(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("X-Test-Token", token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestProductsHandler(t *testing.T) {
	svc, api, _ := newTestService(t)
	router := newTestRouter(svc)

	rr := serve(router, http.MethodGet, "/products?keyword=mug&page=1", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "9", rr.Header().Get("X-Total-Count"))
	require.Equal(t, "mug", api.lastQuery.Get("keyword"))

	var body struct {
		Data       []Product         `json:"data"`
		Pagination common.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "p1", body.Data[0].ID)
	require.Equal(t, 2, body.Pagination.TotalPages)

	rr = serve(router, http.MethodGet, "/products?page=-1", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProductHandlerPassesUpstream404(t *testing.T) {
	svc, _, _ := newTestService(t)
	rr := serve(newTestRouter(svc), http.MethodGet, "/products/nope", "", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "Product not found")
}

func TestSearchHandler(t *testing.T) {
	svc, api, _ := newTestService(t)
	router := newTestRouter(svc)

	rr := serve(router, http.MethodGet, "/search?q=camera", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "camera", api.lastQuery.Get("keyword"))

	rr = serve(router, http.MethodGet, "/search", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAISearchRelaysRaw(t *testing.T) {
	svc, _, _ := newTestService(t)
	rr := serve(newTestRouter(svc), http.MethodPost, "/products/ai-search", `{"query":"cheap laptop"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"products":[]}`, rr.Body.String())
}

func TestReviewHandlers(t *testing.T) {
	svc, api, _ := newTestService(t)
	router := newTestRouter(svc)

	rr := serve(router, http.MethodPut, "/products/p1/reviews", `{"rating":5,"comment":"nice"}`, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(router, http.MethodPut, "/products/p1/reviews", `{"rating":9}`, "tok")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(router, http.MethodPut, "/products/p1/reviews", `{"rating":5,"comment":"nice"}`, "tok")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = serve(router, http.MethodDelete, "/products/p1/reviews", "", "tok")
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1, api.count("review_delete"))
}

func TestCategoriesHandler(t *testing.T) {
	svc, _, _ := newTestService(t)
	rr := serve(newTestRouter(svc), http.MethodGet, "/categories", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":["Laptop","Camera"]}`, rr.Body.String())
}
