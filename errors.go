package longform

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrEmptyResponse is returned when a provider answers with no usable content.
var ErrEmptyResponse = errors.New("empty response")

// ErrorCategory says whether a failed call is worth repeating, and who has
// to fix it if not.
type ErrorCategory string

const (
	// ErrorTransient covers rate limits, overload and dropped connections.
	ErrorTransient ErrorCategory = "transient"
	// ErrorPermanent covers bad keys, missing models and refused permissions.
	ErrorPermanent ErrorCategory = "permanent"
	// ErrorUserInput means the request itself must change: an empty topic,
	// an oversized article, a rejected prompt.
	ErrorUserInput ErrorCategory = "user_input"
)

// CategorizedError is implemented by errors that know their category.
// The retry package and the HTTP server both dispatch on it.
type CategorizedError interface {
	error
	Category() ErrorCategory
	Retryable() bool
	StatusCode() int
	RetryAfter() time.Duration
}

// Error is the CategorizedError used throughout longform.
type Error struct {
	Msg        string
	Cat        ErrorCategory
	Code       int           // HTTP status, 0 if none
	RetryDelay time.Duration // Retry-After hint, 0 if none
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
}

func (e *Error) Unwrap() error             { return e.Cause }
func (e *Error) Category() ErrorCategory   { return e.Cat }
func (e *Error) Retryable() bool           { return e.Cat == ErrorTransient }
func (e *Error) StatusCode() int           { return e.Code }
func (e *Error) RetryAfter() time.Duration { return e.RetryDelay }

// NewTransientError creates an error the retry loop will repeat.
func NewTransientError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorTransient, Code: statusCode, Cause: cause}
}

// NewTransientErrorWithRetry is NewTransientError with the server's
// suggested delay attached.
func NewTransientErrorWithRetry(msg string, statusCode int, retryAfter time.Duration, cause error) *Error {
	e := NewTransientError(msg, statusCode, cause)
	e.RetryDelay = retryAfter
	return e
}

// NewPermanentError creates an error that fails the call immediately.
func NewPermanentError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorPermanent, Code: statusCode, Cause: cause}
}

// NewUserInputError creates an error reporting a bad request. The HTTP
// server answers with statusCode, or 400 when it is 0.
func NewUserInputError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorUserInput, Code: statusCode, Cause: cause}
}

// NewStatusError categorizes an HTTP failure by its status code:
// 429 and 5xx are transient, 400/404/413/422 are user input, the rest permanent.
func NewStatusError(msg string, statusCode int, cause error) *Error {
	switch {
	case statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode < 600):
		return NewTransientError(msg, statusCode, cause)
	case statusCode == http.StatusBadRequest, statusCode == http.StatusNotFound,
		statusCode == http.StatusRequestEntityTooLarge, statusCode == http.StatusUnprocessableEntity:
		return NewUserInputError(msg, statusCode, cause)
	default:
		return NewPermanentError(msg, statusCode, cause)
	}
}

func categorized(err error) (CategorizedError, bool) {
	var ce CategorizedError
	ok := errors.As(err, &ce)
	return ce, ok
}

func isCategory(err error, cat ErrorCategory) bool {
	ce, ok := categorized(err)
	return ok && ce.Category() == cat
}

// IsTransient reports whether err, or an error it wraps, is transient.
func IsTransient(err error) bool { return isCategory(err, ErrorTransient) }

// IsPermanent reports whether err, or an error it wraps, is permanent.
func IsPermanent(err error) bool { return isCategory(err, ErrorPermanent) }

// IsUserInput reports whether err, or an error it wraps, blames the request.
func IsUserInput(err error) bool { return isCategory(err, ErrorUserInput) }

// StatusCodeOf returns the HTTP status code carried by err, or 0.
func StatusCodeOf(err error) int {
	if ce, ok := categorized(err); ok {
		return ce.StatusCode()
	}
	return 0
}

// RetryAfterOf returns the retry delay carried by err, or 0.
func RetryAfterOf(err error) time.Duration {
	if ce, ok := categorized(err); ok {
		return ce.RetryAfter()
	}
	return 0
}
