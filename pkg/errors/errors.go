package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"

	// Resolution pipeline errors
	ErrorTypeInvalidCharacter    ErrorType = "invalid_character"
	ErrorTypeSessionExpired      ErrorType = "session_expired"
	ErrorTypeLoginRequired       ErrorType = "login_required"
	ErrorTypeExtractionMiss      ErrorType = "extraction_miss"
	ErrorTypeUnsupportedMedia    ErrorType = "unsupported_media"
	ErrorTypeCorruptState        ErrorType = "corrupt_state"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same type. Sentinels carry no
// message, so any *Error of that type matches them.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is checks
var (
	ErrInvalidCharacter    = &Error{Type: ErrorTypeInvalidCharacter}
	ErrSessionExpired      = &Error{Type: ErrorTypeSessionExpired}
	ErrLoginRequired       = &Error{Type: ErrorTypeLoginRequired}
	ErrExtractionMiss      = &Error{Type: ErrorTypeExtractionMiss}
	ErrUnsupportedMedia    = &Error{Type: ErrorTypeUnsupportedMedia}
	ErrCorruptState        = &Error{Type: ErrorTypeCorruptState}
	ErrUpstreamUnavailable = &Error{Type: ErrorTypeUpstreamUnavailable}
	ErrNotFound            = &Error{Type: ErrorTypeNotFound}
)

// New creates a typed error
func New(t ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, err error, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Err: err}
}

// TypeOf returns the type of the outermost *Error in the chain, or
// ErrorTypeUnknown when there is none.
func TypeOf(err error) ErrorType {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return ErrorTypeUnknown
}

// IsSessionExpiry reports whether err signals that the authenticated session
// has to be re-established.
func IsSessionExpiry(err error) bool {
	return errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrLoginRequired)
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
