package errors

import (
	"fmt"
)

// ErrorCode represents a categorized error type
type ErrorCode string

const (
	// Configuration errors are fatal at startup
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// Dispatch outcomes
	ErrCodeSessionNotReady   ErrorCode = "SESSION_NOT_READY"
	ErrCodeExtractionTimeout ErrorCode = "EXTRACTION_TIMEOUT"
	ErrCodeTransportFailure  ErrorCode = "TRANSPORT_FAILURE"
	ErrCodeMalformedInput    ErrorCode = "MALFORMED_INPUT"

	// Persistence and infrastructure errors
	ErrCodeCacheIO          ErrorCode = "CACHE_IO"
	ErrCodeHistoryQuery     ErrorCode = "HISTORY_QUERY"
	ErrCodeHistoryMigration ErrorCode = "HISTORY_MIGRATION"
	ErrCodeBrowserFailure   ErrorCode = "BROWSER_FAILURE"
	ErrCodeMediaStore       ErrorCode = "MEDIA_STORE"

	// Validation errors
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
)

// AppError represents a structured application error
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapRetryable wraps an error and marks it as retryable
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Retryable
	}
	return false
}

// IsSkip reports whether the error means the conversation should be
// skipped this cycle without marking the message processed.
func IsSkip(err error) bool {
	return GetCode(err) == ErrCodeSessionNotReady
}

// IsFatal reports whether the error must abort startup.
func IsFatal(err error) bool {
	return GetCode(err) == ErrCodeConfiguration
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}
