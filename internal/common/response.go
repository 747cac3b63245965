package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the payload under "error" in every failure response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

const jsonContentType = "application/json; charset=utf-8"

// JSON encodes v before touching the response so that an encoding failure can
// still be reported as a 500.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(errorEnvelope{Error: ErrorBody{Code: "INTERNAL", Message: "response encoding failed"}})
	}
	Raw(w, status, jsonContentType, append(body, '\n'))
}

// Data writes v inside the success envelope {"data": v}.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, dataEnvelope{Data: v})
}

// JSONError writes the error envelope.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, errorEnvelope{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

// Raw writes body as is, used for payloads relayed from the store API.
func Raw(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType == "" {
		contentType = jsonContentType
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Del("Content-Length")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
