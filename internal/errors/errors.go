package errors

import (
	"context"
	"errors"
	"fmt"
)

// ModeError is the structured error type for indexmode.
// It provides rich context for error handling, logging, and user presentation.
type ModeError struct {
	// Code is the unique error code (e.g., "ERR_301_ALREADY_DISPOSED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Lifecycle, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ModeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ModeError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ModeError sentinels.
func (e *ModeError) Is(target error) bool {
	if t, ok := target.(*ModeError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ModeError) WithDetail(key, value string) *ModeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *ModeError) WithSuggestion(suggestion string) *ModeError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ModeError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ModeError {
	return &ModeError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ModeError from an existing error.
// The error's message becomes the ModeError message.
func Wrap(code string, err error) *ModeError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. They match any ModeError with the same code.
var (
	ErrCanceled        = New(ErrCodeCanceled, "canceled", nil)
	ErrAlreadyDisposed = New(ErrCodeAlreadyDisposed, "already disposed", nil)
	ErrLoopClosed      = New(ErrCodeLoopClosed, "dispatch loop closed", nil)
	ErrTimeout         = New(ErrCodeTimeout, "timed out", nil)
	ErrInvariant       = New(ErrCodeInvariant, "invariant violation", nil)
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ModeError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates a data-directory I/O error.
func IOError(message string, cause error) *ModeError {
	return New(ErrCodeDataDir, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ModeError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ModeError {
	return New(ErrCodeInternal, message, cause)
}

// InvariantError reports a broken internal invariant. The system keeps running.
func InvariantError(message string) *ModeError {
	return New(ErrCodeInvariant, message, nil)
}

// DisposedError reports use of a component after shutdown.
func DisposedError(component string) *ModeError {
	return New(ErrCodeAlreadyDisposed, component+" is already disposed", nil).
		WithDetail("component", component)
}

// CanceledError wraps the cause of a cooperative cancellation.
func CanceledError(cause error) *ModeError {
	msg := "canceled"
	if cause != nil {
		msg = "canceled: " + cause.Error()
	}
	return New(ErrCodeCanceled, msg, cause)
}

// IsCanceled reports whether err represents cooperative cancellation,
// either a ModeError with the canceled code or a context cancellation.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// IsDisposed reports whether err signals use after shutdown.
func IsDisposed(err error) bool {
	return err != nil && errors.Is(err, ErrAlreadyDisposed)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain holds a ModeError with Retryable flag set.
func IsRetryable(err error) bool {
	var me *ModeError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var me *ModeError
	if errors.As(err, &me) {
		return me.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ModeError.
// Returns empty string if not a ModeError.
func GetCode(err error) string {
	var me *ModeError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// GetCategory extracts the category from a ModeError.
// Returns empty string if not a ModeError.
func GetCategory(err error) Category {
	var me *ModeError
	if errors.As(err, &me) {
		return me.Category
	}
	return ""
}
