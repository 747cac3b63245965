package common

import (
	"errors"
	"net/http"
)

// AppError is a failure that already knows how it should look on the wire.
// Services return it for caller mistakes; anything else is mapped by the
// handler.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Code + ": " + e.Err.Error()
	default:
		return e.Code + ": " + e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Status is HTTPStatus, defaulting to 500.
func (e *AppError) Status() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}

// NewAppError wraps err with a code, message and status.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// BadRequest builds a 400 with optional details.
func BadRequest(code, message string, details any) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: http.StatusBadRequest, Details: details}
}

// AsAppError finds an *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

// IsAppError reports whether err's chain holds an *AppError.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// WriteAppError writes err's envelope when it is an *AppError and reports
// whether anything was written.
func WriteAppError(w http.ResponseWriter, err error) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	JSONError(w, appErr.Status(), appErr.Code, appErr.Message, appErr.Details)
	return true
}
