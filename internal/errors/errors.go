// Package errors provides structured error types for the zipcorpus pipeline.
// All errors include a category, code, message, and retryable flag so callers
// can tell task-level failures apart from recoverable entry-level ones.
package errors

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorCategory classifies errors by pipeline concern.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryGeneration ErrorCategory = "GENERATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryExtraction ErrorCategory = "EXTRACTION"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidConfig  = "INVALID_CONFIG"
	CodeVerifyMismatch = "VERIFY_MISMATCH"
	CodeDuplicateID    = "DUPLICATE_ID"

	// Generation codes
	CodePoolExhausted = "POOL_EXHAUSTED"

	// Storage codes
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"
	CodeTableWriteFailed = "TABLE_WRITE_FAILED"
	CodeUploadFailed     = "UPLOAD_FAILED"
	CodeManifestFailed   = "MANIFEST_FAILED"

	// Extraction codes
	CodeMalformedEntry = "MALFORMED_ENTRY"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PipelineError is the structured error type used throughout the system.
type PipelineError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category ErrorCategory, code, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PipelineError) WithDetails(details map[string]interface{}) *PipelineError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// isRetryable reports whether retrying the failed operation can succeed.
// Only uploads to object storage are transient; archive and table I/O
// failures are reported, never retried.
func isRetryable(category ErrorCategory, code string) bool {
	return category == ErrCategoryStorage && code == CodeUploadFailed
}

// Sentinels for errors.Is matching by category and code.
var (
	ErrPoolExhausted  = New(ErrCategoryGeneration, CodePoolExhausted, "identifier pool exhausted")
	ErrWriteFailed    = New(ErrCategoryStorage, CodeWriteFailed, "archive write failed")
	ErrReadFailed     = New(ErrCategoryStorage, CodeReadFailed, "archive read failed")
	ErrMalformedEntry = New(ErrCategoryExtraction, CodeMalformedEntry, "malformed entry")
)

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (e *PipelineError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("category", string(e.Category))
	enc.AddString("code", e.Code)
	enc.AddString("message", e.Message)
	enc.AddBool("retryable", e.Retryable)
	if e.Cause != nil {
		enc.AddString("cause", e.Cause.Error())
	}
	return nil
}

// LogField returns err as a zap field. Structured errors anywhere in the
// chain are logged as an object under "failure"; others fall back to zap.Error.
func LogField(err error) zap.Field {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return zap.Object("failure", pe)
	}
	return zap.Error(err)
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *PipelineError {
	return New(ErrCategoryValidation, code, message)
}

func NewPoolExhaustedError(message string) *PipelineError {
	return New(ErrCategoryGeneration, CodePoolExhausted, message)
}

func NewWriteError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryStorage, CodeWriteFailed, message, cause)
}

func NewReadError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryStorage, CodeReadFailed, message, cause)
}

func NewStorageError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewMalformedEntryError(message string) *PipelineError {
	return New(ErrCategoryExtraction, CodeMalformedEntry, message)
}

func NewInternalError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
