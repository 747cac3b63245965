package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeJSON reads the request body into dst and runs struct validation.
// The returned error is always an *AppError suitable for WriteAppError.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return NewAppError("VALIDATION_ERROR", "request body is required", http.StatusBadRequest, err)
		}
		return NewAppError("INVALID_JSON", "request body must be valid JSON", http.StatusBadRequest, err)
	}
	return Validate(dst)
}

// Validate applies the `validate` struct tags on v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewAppError("VALIDATION_ERROR", err.Error(), http.StatusBadRequest, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	appErr := NewAppError("VALIDATION_ERROR", "request validation failed", http.StatusBadRequest, err)
	appErr.Details = fields
	return appErr
}
