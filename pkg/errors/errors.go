package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategoryInput         ErrorCategory = "input"
	CategoryContract      ErrorCategory = "contract"
	CategoryPattern       ErrorCategory = "pattern"
	CategoryStorage       ErrorCategory = "storage"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryAnalysis      ErrorCategory = "analysis"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"

	// Input errors (malformed extractor output, recoverable per record)
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeAmbiguousID   ErrorCode = "ambiguous_id"

	// Contract violations by the upstream extractor
	CodeNegativeAmount ErrorCode = "negative_amount"
	CodeUnknownType    ErrorCode = "unknown_type"

	// Pattern store errors
	CodePatternTooShort  ErrorCode = "pattern_too_short"
	CodePatternConflict  ErrorCode = "pattern_conflict"
	CodePatternNotFound  ErrorCode = "pattern_not_found"
	CodeInvalidPattern   ErrorCode = "invalid_pattern"
	CodeUnknownCorrField ErrorCode = "unknown_correction_field"

	// Storage errors
	CodeStorageUnavailable ErrorCode = "storage_unavailable"
	CodeMigrationFailed    ErrorCode = "migration_failed"
	CodeQueryFailed        ErrorCode = "query_failed"
	CodeRecordNotFound     ErrorCode = "record_not_found"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Analysis errors
	CodeAnalysisFailed ErrorCode = "analysis_failed"
	CodeCancelled      ErrorCode = "cancelled"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// EngineError is the base error type for all application errors
type EngineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *EngineError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryInput, CategoryContract:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryPattern, CategoryAnalysis, CategoryInternal:
		return 5
	case CategoryStorage:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError
func New(category ErrorCategory, code ErrorCode, message string) *EngineError {
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with EngineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}

	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *EngineError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFilePermission:
		message = fmt.Sprintf("permission denied accessing file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileCorrupted:
		message = fmt.Sprintf("file appears to be corrupted: %s", path)
		suggestion = "re-export the statement from the extraction service"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// InputError describes a single malformed record in the extractor output.
// Input errors are logged and counted; they never abort an analysis.
func InputError(code ErrorCode, record int, field string, value string, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("record %d: invalid amount in '%s': %q", record, field, value)
		suggestion = "amounts must be decimal numbers such as 1234.56"
	case CodeInvalidDate:
		message = fmt.Sprintf("record %d: unparseable date in '%s': %q", record, field, value)
		suggestion = "use YYYY-MM-DD or MM/DD/YYYY dates"
	case CodeMissingField:
		message = fmt.Sprintf("record %d: required field '%s' is missing", record, field)
		suggestion = "provide a value for this field"
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s'", field)
		suggestion = "verify the file has date, description, amount and type columns"
	default:
		message = fmt.Sprintf("record %d: invalid data in '%s': %q", record, field, value)
		suggestion = "check the extractor output for this record"
	}

	return build(CategoryInput, code, message, err).
		WithSuggestion(suggestion).
		WithContext("record", record).
		WithContext("field", field).
		WithContext("value", value)
}

// ContractError reports a violation of the extractor contract, such as a
// negative amount or an unrecognized transaction type. These are faults and
// propagate to the caller.
func ContractError(code ErrorCode, transactionID string, value interface{}) *EngineError {
	var message string

	switch code {
	case CodeNegativeAmount:
		message = fmt.Sprintf("transaction %s has negative amount %v", transactionID, value)
	case CodeUnknownType:
		message = fmt.Sprintf("transaction %s has unrecognized type %v", transactionID, value)
	default:
		message = fmt.Sprintf("transaction %s violates the input contract: %v", transactionID, value)
	}

	return New(CategoryContract, code, message).
		WithSuggestion("the extractor must emit non-negative amounts with type credit or debit").
		WithContext("transaction_id", transactionID).
		WithContext("value", value)
}

// PatternError creates a pattern-store error
func PatternError(code ErrorCode, pattern string, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodePatternTooShort:
		message = fmt.Sprintf("pattern %q is too short to learn from", pattern)
		suggestion = "short descriptions would match unrelated transactions; correct them individually"
	case CodePatternConflict:
		message = fmt.Sprintf("pattern %q is protected by a manual override", pattern)
		suggestion = "record the change as a manual correction instead"
	case CodePatternNotFound:
		message = fmt.Sprintf("pattern %q not found", pattern)
		suggestion = "list patterns to see what is stored"
	case CodeUnknownCorrField:
		message = fmt.Sprintf("unknown correction field %q", pattern)
		suggestion = "use one of: type, revenue_classification, mca_status"
	default:
		message = fmt.Sprintf("invalid pattern %q", pattern)
		suggestion = "check the correction values"
	}

	return build(CategoryPattern, code, message, err).
		WithSuggestion(suggestion).
		WithContext("pattern", pattern)
}

// StorageError creates a persistence-related error
func StorageError(code ErrorCode, operation string, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeStorageUnavailable:
		message = fmt.Sprintf("storage unavailable during %s", operation)
		suggestion = "check the database path and file permissions"
	case CodeMigrationFailed:
		message = fmt.Sprintf("schema migration failed during %s", operation)
		suggestion = "inspect the schema_migrations table; the database may be dirty"
	case CodeRecordNotFound:
		message = fmt.Sprintf("record not found during %s", operation)
		suggestion = "verify the identifier"
	default:
		message = fmt.Sprintf("query failed during %s", operation)
		suggestion = "retry; if it persists, check the database file"
	}

	return build(CategoryStorage, code, message, err).
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this setting in the config file or MCAENGINE_ environment"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// AnalysisError creates an error raised while analysing a statement
func AnalysisError(code ErrorCode, stage string, err error) *EngineError {
	var message, suggestion string

	switch code {
	case CodeCancelled:
		message = fmt.Sprintf("analysis cancelled during %s", stage)
		suggestion = "the enclosing job was cancelled; resubmit the statement"
	default:
		message = fmt.Sprintf("analysis failed during %s", stage)
		suggestion = "review the statement data and pattern store"
	}

	return build(CategoryAnalysis, code, message, err).
		WithSuggestion(suggestion).
		WithContext("stage", stage)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *EngineError {
	return build(CategoryInternal, code, fmt.Sprintf("unexpected error during %s", operation), err).
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*EngineError        `json:"errors"`
	SampleErrors []*EngineError        `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*EngineError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if summary.Errors == nil {
		summary.Errors = []*EngineError{}
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else if len(errs) > 0 {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}
	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// AsEngineError extracts an EngineError from an error chain
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr, true
	}
	return nil, false
}

// HasCode reports whether err carries an EngineError with the given code.
func HasCode(err error, code ErrorCode) bool {
	engineErr, ok := AsEngineError(err)
	return ok && engineErr.Code == code
}

// WrapIfNeeded wraps an error if it's not already an EngineError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}
	if engineErr, ok := AsEngineError(err); ok {
		return engineErr
	}
	return Wrap(err, category, code, message)
}
