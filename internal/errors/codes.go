package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents internal error codes for tracker operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Caller errors
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeNotFound        ErrorCode = 1001

	// Coordination errors
	ErrCodeConflict ErrorCode = 1100

	// Store errors
	ErrCodeInternal    ErrorCode = 2000
	ErrCodeUnavailable ErrorCode = 2001
)

// String returns the metric-friendly name of an error code
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeConflict:
		return "conflict"
	case ErrCodeUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// TrackerError represents a structured error with code and context
type TrackerError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *TrackerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *TrackerError) Unwrap() error {
	return e.Cause
}

// New creates a new TrackerError
func New(code ErrorCode, message string, cause error) *TrackerError {
	return &TrackerError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Convenience constructors for common errors

func InvalidArgument(message string) *TrackerError {
	return New(ErrCodeInvalidArgument, message, nil)
}

func NotFound(message string) *TrackerError {
	return New(ErrCodeNotFound, message, nil)
}

// Conflict signals that a watched transaction was invalidated by a
// concurrent modification. The operation did not apply; the caller must
// re-read fresh state and retry, or abandon the operation.
func Conflict(message string) *TrackerError {
	return New(ErrCodeConflict, message, nil)
}

func Unavailable(message string, cause error) *TrackerError {
	return New(ErrCodeUnavailable, message, cause)
}

func Internal(message string, cause error) *TrackerError {
	return New(ErrCodeInternal, message, cause)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var te *TrackerError
	if errors.As(err, &te) {
		return te.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether err carries the NotFound code
func IsNotFound(err error) bool {
	return GetCode(err) == ErrCodeNotFound
}

// IsConflict reports whether err carries the Conflict code
func IsConflict(err error) bool {
	return GetCode(err) == ErrCodeConflict
}

// IsUnavailable reports whether err carries the Unavailable code
func IsUnavailable(err error) bool {
	return GetCode(err) == ErrCodeUnavailable
}

// IsInvalidArgument reports whether err carries the InvalidArgument code
func IsInvalidArgument(err error) bool {
	return GetCode(err) == ErrCodeInvalidArgument
}
