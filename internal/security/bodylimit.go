package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/noah-isme/toko-storefront/internal/common"
)

// BodyLimit caps request bodies at Max bytes. The body is read up front so
// that handlers and upstream forwards see a fully buffered, replayable
// payload.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 PAYLOAD_TOO_LARGE when the declared or actual body
// exceeds Max.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			payloadTooLarge(w, b.Max)
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, b.Max))
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			payloadTooLarge(w, b.Max)
			return
		case err != nil:
			common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "could not read request body", nil)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(data))
		r.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }
		r.ContentLength = int64(len(data))
		next.ServeHTTP(w, r)
	})
}

func payloadTooLarge(w http.ResponseWriter, max int64) {
	common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", map[string]int64{"maxBytes": max})
}
