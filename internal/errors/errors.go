package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Validation: rejected immediately, never retried
	ErrCodeValidation        ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidCoordinate ErrorCode = "INVALID_COORDINATE"

	// State conflicts: caller must re-fetch state before retrying
	ErrCodeSessionAlreadyActive ErrorCode = "SESSION_ALREADY_ACTIVE"
	ErrCodeNotOwner             ErrorCode = "NOT_OWNER"
	ErrCodeAlreadyEnded         ErrorCode = "ALREADY_ENDED"
	ErrCodeNotEligible          ErrorCode = "NOT_ELIGIBLE"
	ErrCodeInvalidSessionState  ErrorCode = "INVALID_SESSION_STATE"
	ErrCodeNotParticipant       ErrorCode = "NOT_PARTICIPANT"
	ErrCodeConnectionNotOpen    ErrorCode = "CONNECTION_NOT_OPEN"
	ErrCodeConnectionTerminal   ErrorCode = "CONNECTION_TERMINAL"
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"

	// Auth
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Transient: retried on the next scheduled attempt or surfaced for explicit retry
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// Invariant violations: fatal, logged loudly, never auto-corrected
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func InvalidCoordinate(lat, lon float64) *AppError {
	return New(ErrCodeInvalidCoordinate, "Coordinates out of range").
		WithDetails(map[string]float64{"lat": lat, "lon": lon})
}

func SessionAlreadyActive() *AppError {
	return New(ErrCodeSessionAlreadyActive, "User already has an active session")
}

func NotOwner() *AppError {
	return New(ErrCodeNotOwner, "Requester does not own this session")
}

func AlreadyEnded() *AppError {
	return New(ErrCodeAlreadyEnded, "Session has already ended")
}

func NotEligible(reason string) *AppError {
	return New(ErrCodeNotEligible, fmt.Sprintf("User is not eligible: %s", reason))
}

func InvalidSessionState(reason string) *AppError {
	return New(ErrCodeInvalidSessionState, fmt.Sprintf("Session state is invalid: %s", reason))
}

func NotParticipant() *AppError {
	return New(ErrCodeNotParticipant, "User is not a participant of this connection")
}

func ConnectionNotOpen() *AppError {
	return New(ErrCodeConnectionNotOpen, "This connection has ended")
}

func ConnectionTerminal() *AppError {
	return New(ErrCodeConnectionTerminal, "Connection has already been converted")
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err is an AppError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
