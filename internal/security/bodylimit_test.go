package security

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoBody(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), r.ContentLength)
		_, _ = w.Write(data)
	})
}

func TestBodyLimit(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		declared int64
		status   int
	}{
		{name: "within limit", body: `{"qty":1}`, status: http.StatusOK},
		{name: "exactly at limit", body: strings.Repeat("a", 16), status: http.StatusOK},
		{name: "streamed over limit", body: strings.Repeat("a", 17), declared: -1, status: http.StatusRequestEntityTooLarge},
		{name: "declared over limit", body: "tiny", declared: 1 << 20, status: http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(tc.body))
			if tc.declared != 0 {
				req.ContentLength = tc.declared
			}
			rr := httptest.NewRecorder()
			BodyLimit{Max: 16}.Middleware(echoBody(t)).ServeHTTP(rr, req)

			require.Equal(t, tc.status, rr.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, rr.Body.String())
			} else {
				assert.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")
			}
		})
	}
}

func TestBodyLimitSkipsEmptyBodies(t *testing.T) {
	called := false
	h := BodyLimit{Max: 1}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
