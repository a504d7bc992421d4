package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrAdapterUnavailable ErrorType = "ADAPTER_UNAVAILABLE"
	ErrInvalidBatch       ErrorType = "INVALID_BATCH"
	ErrNotCancelable      ErrorType = "NOT_CANCELABLE"
	ErrAdapterNotFound    ErrorType = "ADAPTER_NOT_FOUND"
	ErrDuplicateAdapter   ErrorType = "DUPLICATE_ADAPTER_NAME"
	ErrInvalidAdapter     ErrorType = "INVALID_ADAPTER"
	ErrIntegrityCheck     ErrorType = "INTEGRITY_CHECK_ERROR"
	ErrInvalidRequest     ErrorType = "INVALID_REQUEST"
	ErrNotFound           ErrorType = "NOT_FOUND"
	ErrInternal           ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidBatch(msg string) *AppError {
	return New(ErrInvalidBatch, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewAdapterUnavailable(msg string, cause error) *AppError {
	return New(ErrAdapterUnavailable, msg, cause)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidBatch, ErrInvalidRequest, ErrInvalidAdapter:
		return http.StatusBadRequest
	case ErrNotCancelable, ErrDuplicateAdapter:
		return http.StatusConflict
	case ErrAdapterNotFound, ErrNotFound:
		return http.StatusNotFound
	case ErrAdapterUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrAdapterUnavailable:
		return "Backend unreachable. Retry after checking adapter health."
	case ErrNotCancelable:
		return "Only PENDING batches can be canceled."
	case ErrAdapterNotFound:
		return "Check registered adapter names via the list endpoint."
	case ErrInvalidBatch:
		return "Batches need at least one item with a positive amount."
	default:
		return ""
	}
}
