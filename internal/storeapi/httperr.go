package storeapi

import (
	"errors"
	"net/http"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/resilience"
)

// WriteError renders store API failures and reports whether err was one.
// Upstream 4xx answers keep their status and message; everything else on the
// upstream side becomes 502 or 503.
func WriteError(w http.ResponseWriter, err error) bool {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Temporary() {
			common.JSONError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "store API failed", nil)
			return true
		}
		common.JSONError(w, apiErr.Status, codeForStatus(apiErr.Status), apiErr.Message, nil)
		return true
	case errors.Is(err, resilience.ErrOpenCircuit):
		common.JSONError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "store API temporarily unavailable", nil)
		return true
	case errors.Is(err, ErrUnavailable):
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "store API unreachable", nil)
		return true
	default:
		return false
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusUnprocessableEntity:
		return "UNPROCESSABLE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return "UPSTREAM_REJECTED"
	}
}
