package storeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnavailable wraps transport failures, exhausted retries and an open breaker.
var ErrUnavailable = errors.New("storeapi: upstream unavailable")

// APIError is a non-2xx answer from the store API.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: store api status %d: %s", e.Op, e.Status, e.Message)
}

// Temporary reports whether the failure is on the upstream side.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError
}

// StatusOf returns the upstream status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

type errorEnvelope struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

func newAPIError(op string, status int, payload []byte) *APIError {
	msg := ""
	var env errorEnvelope
	if err := json.Unmarshal(payload, &env); err == nil {
		msg = env.Message
		if msg == "" && len(env.Error) > 0 {
			var s string
			if json.Unmarshal(env.Error, &s) == nil {
				msg = s
			} else {
				var nested struct {
					Message string `json:"message"`
				}
				if json.Unmarshal(env.Error, &nested) == nil {
					msg = nested.Message
				}
			}
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(payload))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Op: op, Status: status, Message: msg}
}
