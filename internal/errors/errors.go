// Package errors provides structured error types for the Hookrelay system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryTrigger    ErrorCategory = "TRIGGER"
	ErrCategoryDispatch   ErrorCategory = "DISPATCH"
	ErrCategoryArchive    ErrorCategory = "ARCHIVE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidEvent  = "INVALID_EVENT"
	CodeInvalidSource = "INVALID_SOURCE"
	CodeInvalidFilter = "INVALID_FILTER"

	// Storage codes
	CodeAppendFailed  = "APPEND_FAILED"
	CodeReadFailed    = "READ_FAILED"
	CodePersistFailed = "PERSIST_FAILED"

	// Trigger codes
	CodeTriggerNotFound = "TRIGGER_NOT_FOUND"

	// Dispatch codes
	CodeExecutionFailed = "EXECUTION_FAILED"
	CodeNoExecutor      = "NO_EXECUTOR"

	// Archive codes
	CodeRotateFailed   = "ROTATE_FAILED"
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeChecksumFailed = "CHECKSUM_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// HookrelayError is the structured error type used throughout the system.
type HookrelayError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *HookrelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *HookrelayError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *HookrelayError) Is(target error) bool {
	var t *HookrelayError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new HookrelayError.
func New(category ErrorCategory, code, message string) *HookrelayError {
	return &HookrelayError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new HookrelayError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *HookrelayError {
	return &HookrelayError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *HookrelayError) WithDetails(details map[string]interface{}) *HookrelayError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var he *HookrelayError
	if errors.As(err, &he) {
		return he.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a HookrelayError.
func GetCategory(err error) ErrorCategory {
	var he *HookrelayError
	if errors.As(err, &he) {
		return he.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a HookrelayError.
func GetCode(err error) string {
	var he *HookrelayError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Append and upload
// failures are the only operations the caller is expected to retry; a
// retried append produces at worst a duplicate suppressed by the dedup cache.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeAppendFailed:
		return true
	case category == ErrCategoryArchive && code == CodeUploadFailed:
		return true
	case category == ErrCategoryDispatch && code == CodeExecutionFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *HookrelayError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *HookrelayError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewTriggerError(code, message string) *HookrelayError {
	return New(ErrCategoryTrigger, code, message)
}

func NewDispatchError(code, message string, cause error) *HookrelayError {
	return Wrap(ErrCategoryDispatch, code, message, cause)
}

func NewArchiveError(code, message string, cause error) *HookrelayError {
	return Wrap(ErrCategoryArchive, code, message, cause)
}

func NewInternalError(message string, cause error) *HookrelayError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
