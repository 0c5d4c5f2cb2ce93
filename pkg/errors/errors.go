package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the failure classes a monitor cycle can hit
type ErrorType string

const (
	ErrorTypeTransport         ErrorType = "transport"
	ErrorTypeRateLimited       ErrorType = "rate_limited"
	ErrorTypeNotFoundOrPrivate ErrorType = "not_found_or_private"
	ErrorTypeUnexpectedStatus  ErrorType = "unexpected_status"
	ErrorTypeParseExhausted    ErrorType = "parse_exhausted"
	ErrorTypeSessionInvalid    ErrorType = "session_invalid"
	ErrorTypeInternal          ErrorType = "internal"
)

// Error represents a typed monitor error. Code carries the HTTP status when
// one is known.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transport wraps a network-level failure.
func Transport(err error) *Error {
	return &Error{Type: ErrorTypeTransport, Message: err.Error(), Err: err}
}

// RateLimited is returned for HTTP 429.
func RateLimited() *Error {
	return &Error{Type: ErrorTypeRateLimited, Message: "too many requests", Code: http.StatusTooManyRequests}
}

// NotFoundOrPrivate is returned for HTTP 404.
func NotFoundOrPrivate() *Error {
	return &Error{Type: ErrorTypeNotFoundOrPrivate, Message: "profile not found or private", Code: http.StatusNotFound}
}

// Unexpected is returned for any other non-200 status.
func Unexpected(status int) *Error {
	return &Error{Type: ErrorTypeUnexpectedStatus, Message: fmt.Sprintf("unexpected status %d", status), Code: status}
}

// ParseExhausted means every extraction strategy came back empty.
func ParseExhausted() *Error {
	return &Error{Type: ErrorTypeParseExhausted, Message: "no extraction strategy produced a profile"}
}

// Internal wraps a recovered panic or programming error.
func Internal(format string, args ...interface{}) *Error {
	return &Error{Type: ErrorTypeInternal, Message: fmt.Sprintf(format, args...)}
}

// TypeOf returns the ErrorType of err, or "" if err is not a typed error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// Is reports whether err is a typed error of the given type.
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport, ErrorTypeRateLimited:
		return true
	default:
		return false
	}
}
