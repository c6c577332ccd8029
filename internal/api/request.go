package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Normalizer is implemented by request bodies that clean up their fields
// (trimming, lowercasing) before validation.
type Normalizer interface {
	Normalize()
}

// DecodeJSON reads a JSON body of at most 1 MiB into dst and validates it.
// On failure it writes the error response and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleError(w, ErrBodyTooLarge)
			return false
		}
		HandleError(w, ErrBadRequest)
		return false
	}

	if n, ok := dst.(Normalizer); ok {
		n.Normalize()
	}

	if err := validate.Struct(dst); err != nil {
		HandleError(w, validationError(err))
		return false
	}
	return true
}

// validationError maps each failing field to the rule it broke, e.g. {"username": "min=3"}.
func validationError(err error) *AppError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewValidationError(err.Error())
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details[fe.Field()] = rule
	}
	return &AppError{Code: http.StatusBadRequest, Message: "validation failed", Details: details}
}
