package api

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest            = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrBodyTooLarge          = &AppError{Code: http.StatusRequestEntityTooLarge, Message: "request body too large"}
	ErrUnauthorized          = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbidden             = &AppError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrNotFound              = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrConflict              = &AppError{Code: http.StatusConflict, Message: "conflict"}
	ErrInternalServer        = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidCredentials    = &AppError{Code: http.StatusUnauthorized, Message: "invalid username or password"}
	ErrUsernameTaken         = &AppError{Code: http.StatusConflict, Message: "username already registered"}
	ErrEmailTaken            = &AppError{Code: http.StatusConflict, Message: "email already registered"}
	ErrInvalidToken          = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrIdentityRequired      = &AppError{Code: http.StatusUnauthorized, Message: "authorization token or guest_id required"}
	ErrTooManyRequests       = &AppError{Code: http.StatusTooManyRequests, Message: "too many requests"}
	ErrProviderUnavailable   = &AppError{Code: http.StatusBadGateway, Message: "completion provider unavailable"}
	ErrPaymentUnavailable    = &AppError{Code: http.StatusBadGateway, Message: "payment provider unavailable"}
	ErrPaymentsNotConfigured = &AppError{Code: http.StatusServiceUnavailable, Message: "payments are not configured"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

// NewQuotaExhaustedError reports a rejected admission with the balances a client needs to prompt a purchase.
func NewQuotaExhaustedError(usage any) *AppError {
	return &AppError{
		Code:    http.StatusTooManyRequests,
		Message: "request limit reached, purchase a request pack to continue",
		Details: usage,
	}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Code, Response{Error: appErr.Message, Details: appErr.Details})
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
