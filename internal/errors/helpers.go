package errors

import (
	"fmt"
)

// Common error creators for frequent use cases

// NewConfigError creates a fatal configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeConfiguration, message).
		WithContext("config_key", key)
}

// NewSessionNotReadyError marks a provider whose channel needs human
// attention. Always treated as skip, never as failure.
func NewSessionNotReadyError(providerID, state string) *AppError {
	return New(ErrCodeSessionNotReady, fmt.Sprintf("provider %s session is %s", providerID, state)).
		WithContext("provider", providerID).
		WithContext("state", state)
}

// NewExtractionTimeoutError reports a UI response that never stabilized
// within the allowed wait. Retriable on the next cycle.
func NewExtractionTimeoutError(providerID string, waited string) *AppError {
	return WrapRetryable(nil, ErrCodeExtractionTimeout,
		fmt.Sprintf("response did not stabilize within %s", waited)).
		WithContext("provider", providerID).
		WithContext("waited", waited)
}

// NewTransportError classifies a provider API call failure. Network
// errors (statusCode 0), 408, 429 and 5xx are retryable; any other 4xx
// means the request itself is unusable and is surfaced as malformed
// input so the message is not retried forever.
func NewTransportError(providerID, endpoint string, statusCode int, err error) *AppError {
	retryable := statusCode == 0 || statusCode == 408 || statusCode == 429 || statusCode >= 500

	code := ErrCodeTransportFailure
	if !retryable {
		code = ErrCodeMalformedInput
	}

	appErr := Wrap(err, code, fmt.Sprintf("provider %s request failed", providerID)).
		WithContext("provider", providerID).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)
	appErr.Retryable = retryable
	return appErr
}

// NewMalformedInputError reports a message that can never be dispatched
// successfully. The orchestrator caches its fingerprint to stop retry
// storms.
func NewMalformedInputError(reason string) *AppError {
	return New(ErrCodeMalformedInput, reason)
}

// NewCacheError creates a cache persistence error
func NewCacheError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeCacheIO, fmt.Sprintf("cache %s failed", operation)).
		WithContext("operation", operation)
}

// NewHistoryError creates a history store error
func NewHistoryError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeHistoryQuery, fmt.Sprintf("history %s failed", operation)).
		WithContext("operation", operation)
}

// NewBrowserError reports a browser automation fault. Treated as
// transport-class: retriable on the next cycle.
func NewBrowserError(operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodeBrowserFailure, fmt.Sprintf("browser %s failed", operation)).
		WithContext("operation", operation)
}

// NewMediaError creates a media processing error
func NewMediaError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeMediaStore, fmt.Sprintf("media %s failed", operation)).
		WithContext("operation", operation)
}

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeInvalidInput, message).
		WithContext("field", field)
}
