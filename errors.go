package dylan

import (
	"errors"
	"fmt"
	"time"
)

// ErrSessionBusy is returned when a turn is started on a session that is
// already running another turn.
var ErrSessionBusy = errors.New("session: turn already in progress")

// ErrorKind classifies failures surfaced by the agent runtime. Tool kinds are
// recovered as tool results; the others end or reject a turn.
type ErrorKind string

const (
	KindToolTimeout          ErrorKind = "tool_timeout"
	KindToolInvalidArguments ErrorKind = "tool_invalid_arguments"
	KindToolInternalError    ErrorKind = "tool_internal_error"
	KindToolNotFound         ErrorKind = "tool_not_found"
	// KindToolSkipped marks a call that was never dispatched because the
	// turn stopped first.
	KindToolSkipped ErrorKind = "tool_skipped"

	KindModelGatewayFailure ErrorKind = "model_gateway_failure"
	KindSessionConcurrency  ErrorKind = "session_concurrency_violation"
)

// Kinded is implemented by errors that carry an ErrorKind.
type Kinded interface {
	error
	Kind() ErrorKind
}

// KindOf returns the kind of err, searching wrapped errors. It returns the
// empty kind when nothing in the chain is classified.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, ErrSessionBusy) {
		return KindSessionConcurrency
	}
	return ""
}

// GatewayError wraps a failure of the model gateway during a turn.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("model gateway: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Kind implements Kinded.
func (e *GatewayError) Kind() ErrorKind { return KindModelGatewayFailure }

// ErrorCategory classifies provider errors by how they should be handled.
type ErrorCategory string

const (
	// ErrorTransient indicates the error is temporary and the operation can be retried.
	// Examples: rate limits, temporary network issues, server overload.
	ErrorTransient ErrorCategory = "transient"

	// ErrorPermanent indicates the error is not recoverable through retry.
	// Examples: invalid API key, insufficient permissions, model not found.
	ErrorPermanent ErrorCategory = "permanent"

	// ErrorUserInput indicates the request itself was rejected.
	ErrorUserInput ErrorCategory = "user_input"
)

// CategorizedError is an error that provides information about how it should be handled.
type CategorizedError interface {
	error
	Category() ErrorCategory
	Retryable() bool
	StatusCode() int
	RetryAfter() time.Duration
}

// Error is a categorized provider error.
type Error struct {
	Msg        string
	Cat        ErrorCategory
	Code       int           // HTTP status code, 0 if not applicable
	RetryDelay time.Duration // from Retry-After header, 0 if not available
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Category returns the error category.
func (e *Error) Category() ErrorCategory { return e.Cat }

// Retryable returns true if the error is transient.
func (e *Error) Retryable() bool { return e.Cat == ErrorTransient }

// StatusCode returns the HTTP status code, or 0 if not applicable.
func (e *Error) StatusCode() int { return e.Code }

// RetryAfter returns the suggested retry delay, or 0 if not available.
func (e *Error) RetryAfter() time.Duration { return e.RetryDelay }

// NewTransientError creates a transient error that can be retried.
func NewTransientError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorTransient, Code: statusCode, Cause: cause}
}

// NewTransientErrorWithRetry creates a transient error with a suggested retry delay.
func NewTransientErrorWithRetry(msg string, statusCode int, retryAfter time.Duration, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorTransient, Code: statusCode, RetryDelay: retryAfter, Cause: cause}
}

// NewPermanentError creates a permanent error that should not be retried.
func NewPermanentError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorPermanent, Code: statusCode, Cause: cause}
}

// NewUserInputError creates an error indicating the request was invalid.
func NewUserInputError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorUserInput, Code: statusCode, Cause: cause}
}

// CategorizeStatus maps an HTTP status code to a categorized error.
func CategorizeStatus(msg string, statusCode int, retryAfter time.Duration, cause error) *Error {
	switch {
	case statusCode == 429 || statusCode >= 500:
		return NewTransientErrorWithRetry(msg, statusCode, retryAfter, cause)
	case statusCode == 401 || statusCode == 403:
		return NewPermanentError(msg, statusCode, cause)
	case statusCode >= 400:
		return NewUserInputError(msg, statusCode, cause)
	default:
		return NewPermanentError(msg, statusCode, cause)
	}
}

func categoryOf(err error) (ErrorCategory, bool) {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category(), true
	}
	return "", false
}

// IsTransient returns true if err or any wrapped error is categorized as transient.
func IsTransient(err error) bool {
	cat, ok := categoryOf(err)
	return ok && cat == ErrorTransient
}

// IsPermanent returns true if err or any wrapped error is categorized as permanent.
func IsPermanent(err error) bool {
	cat, ok := categoryOf(err)
	return ok && cat == ErrorPermanent
}

// IsUserInput returns true if err or any wrapped error is categorized as a user input error.
func IsUserInput(err error) bool {
	cat, ok := categoryOf(err)
	return ok && cat == ErrorUserInput
}

// RetryAfterOf returns the retry delay from a categorized error, or 0.
func RetryAfterOf(err error) time.Duration {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.RetryAfter()
	}
	return 0
}
