package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestHookrelayError_Error(t *testing.T) {
	err := New(ErrCategoryStorage, CodeAppendFailed, "append failed")
	expected := "[STORAGE:APPEND_FAILED] append failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestHookrelayError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCategoryStorage, CodeAppendFailed, "append failed", cause)
	expected := "[STORAGE:APPEND_FAILED] append failed: disk full"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestHookrelayError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryDispatch, CodeExecutionFailed, "agent run failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestHookrelayError_Is(t *testing.T) {
	err1 := New(ErrCategoryStorage, CodeAppendFailed, "first")
	err2 := New(ErrCategoryStorage, CodeAppendFailed, "second")
	err3 := New(ErrCategoryStorage, CodeReadFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeAppendFailed, true},
		{ErrCategoryStorage, CodeReadFailed, false},
		{ErrCategoryStorage, CodePersistFailed, false},
		{ErrCategoryArchive, CodeUploadFailed, true},
		{ErrCategoryArchive, CodeRotateFailed, false},
		{ErrCategoryDispatch, CodeExecutionFailed, true},
		{ErrCategoryTrigger, CodeTriggerNotFound, false},
		{ErrCategoryValidation, CodeInvalidEvent, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryTrigger, CodeTriggerNotFound, "missing")
	if GetCategory(err) != ErrCategoryTrigger {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryTrigger)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-HookrelayError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryArchive, CodeChecksumFailed, "fingerprint mismatch")
	if GetCode(err) != CodeChecksumFailed {
		t.Errorf("got %q, want %q", GetCode(err), CodeChecksumFailed)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-HookrelayError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryDispatch, CodeExecutionFailed, "boom")
	detailed := err.WithDetails(map[string]interface{}{"agent": "reviewer", "trigger": "t-1"})
	if detailed.Details["agent"] != "reviewer" {
		t.Error("details should be attached to the copy")
	}
	if err.Details != nil {
		t.Error("original error should remain without details")
	}
}
