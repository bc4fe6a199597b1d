package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEngineError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "contract violation",
			category:   CategoryContract,
			code:       CodeNegativeAmount,
			message:    "negative amount",
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "storage error",
			category:   CategoryStorage,
			code:       CodeQueryFailed,
			message:    "query failed",
			cause:      errors.New("disk I/O error"),
			expectCode: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *EngineError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if got := err.GetExitCode(); got != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, got)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("expected cause to be reachable through Unwrap")
			}
			if len(err.StackTrace) == 0 {
				t.Errorf("expected stack trace to be captured")
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryInternal, CodeUnexpectedError, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestContractError(t *testing.T) {
	err := ContractError(CodeUnknownType, "tx-1", "transfer")

	if err.Category != CategoryContract {
		t.Errorf("expected contract category, got %s", err.Category)
	}
	if !strings.Contains(err.Error(), "unrecognized type") {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if err.Context["transaction_id"] != "tx-1" {
		t.Errorf("expected transaction_id in context, got %v", err.Context)
	}
}

func TestPatternErrorSuggestion(t *testing.T) {
	err := PatternError(CodePatternTooShort, "atm", nil)
	if err.Suggestion == "" {
		t.Fatal("expected a suggestion")
	}
	if !strings.Contains(err.Error(), "suggestion:") {
		t.Errorf("expected suggestion in error string, got %s", err.Error())
	}
}

func TestAsEngineErrorThroughWrapping(t *testing.T) {
	base := StorageError(CodeRecordNotFound, "get_transaction", nil)
	wrapped := fmt.Errorf("loading: %w", base)

	got, ok := AsEngineError(wrapped)
	if !ok {
		t.Fatal("expected EngineError to be found in chain")
	}
	if got.Code != CodeRecordNotFound {
		t.Errorf("expected %s, got %s", CodeRecordNotFound, got.Code)
	}
	if !HasCode(wrapped, CodeRecordNotFound) {
		t.Error("HasCode should see through fmt wrapping")
	}
	if HasCode(errors.New("plain"), CodeRecordNotFound) {
		t.Error("HasCode should be false for plain errors")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	original := InputError(CodeInvalidDate, 3, "date", "13/45/2024", nil)
	if WrapIfNeeded(original, CategoryInternal, CodeUnexpectedError, "x") != original {
		t.Error("existing EngineError should be returned unchanged")
	}

	plain := errors.New("boom")
	wrapped := WrapIfNeeded(plain, CategoryInternal, CodeUnexpectedError, "wrapped")
	if wrapped.Cause != plain {
		t.Error("plain error should become the cause")
	}
}

func TestErrorSummary(t *testing.T) {
	empty := NewErrorSummary(nil)
	if empty.Error() != "no errors" {
		t.Errorf("unexpected empty summary: %s", empty.Error())
	}

	errs := []*EngineError{
		InputError(CodeInvalidDate, 1, "date", "x", nil),
		InputError(CodeInvalidDate, 2, "date", "y", nil),
		InputError(CodeInvalidAmount, 3, "amount", "z", nil),
	}
	summary := NewErrorSummary(errs)

	if summary.Total != 3 {
		t.Errorf("expected 3 errors, got %d", summary.Total)
	}
	if summary.ByCode[CodeInvalidDate] != 2 {
		t.Errorf("expected 2 invalid date errors, got %d", summary.ByCode[CodeInvalidDate])
	}
	if !summary.HasCode(CodeInvalidAmount) {
		t.Error("expected invalid amount code")
	}
	if !strings.Contains(summary.Error(), "3 errors occurred") {
		t.Errorf("unexpected summary string: %s", summary.Error())
	}
}
