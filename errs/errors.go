package errs

import (
	"fmt"
	"time"
)

// Error code constants for structured errors.
const (
	// CodeInvalidID marks a rejected meter identifier (empty name, illegal tag key).
	CodeInvalidID = "INVALID_ID"

	// CodeInvalidConfig marks a configuration that failed validation at start.
	CodeInvalidConfig = "INVALID_CONFIG"

	// CodePublishHTTP marks a transport failure on the publish path.
	CodePublishHTTP = "PUBLISH_HTTP"

	// CodePublishValidation marks measurements rejected by the aggregation service.
	CodePublishValidation = "PUBLISH_VALIDATION"

	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeNotFound      = "NOT_FOUND"
	CodeInternal      = "INTERNAL_ERROR"
)

// Error is a structured error with a code, optional wrapped cause, and
// free-form context. It implements error, Unwrap, and Is-by-code so callers
// can match against sentinel errors without string comparison.
type Error struct {
	Code      string
	Message   string
	Err       error
	Timestamp time.Time
	Ctx       map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by error code, allowing errors.Is against sentinel values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Code != "" && e.Code == t.Code
}

// WithContext attaches a key-value pair and returns the error for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Ctx == nil {
		e.Ctx = make(map[string]any)
	}

	e.Ctx[key] = value

	return e
}

// GetContext returns the error's context map.
func (e *Error) GetContext() map[string]any {
	return e.Ctx
}

// New creates a structured error.
func New(code, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Newf creates a structured error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a structured error wrapping an underlying cause.
func Wrap(code, message string, err error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code string) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}

		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}

		err = u.Unwrap()
	}

	return false
}
