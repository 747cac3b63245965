package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteOf returns the chi pattern that matched r, or "unmatched". chi fills
// the pattern in while routing, so middleware must call this after next has
// served the request.
func RouteOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
