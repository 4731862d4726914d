package errors

import "net/http"

// ErrorCode is the machine-readable code carried in every API error body
type ErrorCode string

const (
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrNotOnline    ErrorCode = "USER_NOT_ONLINE"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrForbidden    ErrorCode = "FORBIDDEN"
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrBadRequest   ErrorCode = "BAD_REQUEST"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// StatusCode returns the HTTP status for the code; unknown codes are 500
func (e ErrorCode) StatusCode() int {
	switch e {
	case ErrNotFound, ErrNotOnline:
		// an offline callee reads as not found
		return http.StatusNotFound
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrValidation:
		return http.StatusUnprocessableEntity
	case ErrBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
