package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrGateway         = errors.New("gateway error")
	ErrOverloaded      = errors.New("capability overloaded")
	ErrAnalysis        = errors.New("analysis failed")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Unauthenticated returns an AppError for operations that require a signed-in
// user or a configured credential. The UI maps this to a "sign in" prompt.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// GatewayFailed wraps a remote CRUD failure, keeping the remote message
// so the UI can show what the backend actually said.
func GatewayFailed(operation string, cause error) *AppError {
	return &AppError{
		Err:     ErrGateway,
		Message: fmt.Sprintf("%s: %v", operation, cause),
	}
}

// Overloaded marks a transient capability failure that survived the retry
// ceiling. The UI distinguishes this ("try again later") from AnalysisFailed.
func Overloaded(message string) *AppError {
	return &AppError{
		Err:     ErrOverloaded,
		Message: message,
	}
}

// AnalysisFailed marks a non-retryable capability failure: bad credential at
// the provider, malformed response, or any other non-overload error.
func AnalysisFailed(message string) *AppError {
	return &AppError{
		Err:     ErrAnalysis,
		Message: message,
	}
}
