// Package errors provides structured error handling for indexmode.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (data directory, locks)
//   - 3XX: Lifecycle errors (disposed coordinator, closed loop, timeouts)
//   - 4XX: Validation errors
//   - 5XX: Internal errors and invariant violations
//   - 6XX: Cancellation
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and lock I/O errors.
	CategoryIO Category = "IO"
	// CategoryLifecycle indicates use of a component outside its lifetime.
	CategoryLifecycle Category = "LIFECYCLE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
	// CategoryCancellation indicates cooperative cancellation. Never a failure.
	CategoryCancellation Category = "CANCELLATION"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeDataDir  = "ERR_201_DATA_DIR"
	ErrCodeLockHeld = "ERR_202_LOCK_HELD"

	// Lifecycle errors (300-399)
	ErrCodeAlreadyDisposed = "ERR_301_ALREADY_DISPOSED"
	ErrCodeLoopClosed      = "ERR_302_LOOP_CLOSED"
	ErrCodeTimeout         = "ERR_303_TIMEOUT"
	ErrCodeWrongThread     = "ERR_304_WRONG_THREAD"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeInvariant        = "ERR_502_INVARIANT_VIOLATION"
	ErrCodeTransitionFailed = "ERR_503_TRANSITION_FAILED"
	ErrCodeTaskFailed       = "ERR_504_TASK_FAILED"
	ErrCodeCallbackFailed   = "ERR_505_CALLBACK_FAILED"
	ErrCodeAlreadyAttached  = "ERR_506_ALREADY_ATTACHED"

	// Cancellation (600-699)
	ErrCodeCanceled = "ERR_601_CANCELED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryLifecycle
	case '4':
		return CategoryValidation
	case '6':
		return CategoryCancellation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeTransitionFailed:
		return SeverityFatal
	case ErrCodeCanceled:
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTimeout, ErrCodeLockHeld:
		return true
	default:
		return false
	}
}
