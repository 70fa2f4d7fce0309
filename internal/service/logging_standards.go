package service

// Logging Standards for chatbridge
//
// This file defines standard field names, log levels, and patterns
// to ensure consistent logging across the application.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldConversation = "conversation"
	LogFieldProvider     = "provider"
	LogFieldFingerprint  = "fingerprint"
	LogFieldSession      = "session"
	LogFieldRequestID    = "request_id"
	LogFieldCycleID      = "cycle_id"
	LogFieldTraceID      = "trace_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Message and event fields
	LogFieldEvent       = "event"
	LogFieldMessageKind = "kind"
	LogFieldPlatform    = "platform"
	LogFieldTransport   = "transport" // "ui" or "api"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// File and media
	LogFieldFilePath  = "file_path"
	LogFieldFileName  = "file_name"
	LogFieldMediaType = "media_type"
	LogFieldFileSize  = "file_size"

	// Error and debugging
	LogFieldErrorCode  = "error_code"
	LogFieldErrorType  = "error_type"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)

// Log Level Usage Guidelines
//
// DEBUG: Detailed information for diagnosing problems. Only use in development or verbose mode.
//   - Poll cycle details and per-conversation decisions
//   - Selector evaluation and extraction progress
//   - Raw request/response data (sanitized)
//
// INFO: General information about application flow and key events.
//   - Application startup/shutdown
//   - New message detected, reply delivered
//   - Provider sessions becoming ready
//   - Configuration loaded
//   - Services started/stopped
//
// WARN: Something unexpected happened, but the application can continue.
//   - Retryable errors
//   - Fallback behavior used
//   - Configuration issues (using defaults)
//   - Provider temporarily unavailable or circuit open
//
// ERROR: Error events that might still allow the application to continue.
//   - Dispatch failed permanently
//   - External service errors
//   - Data validation failures
//
// FATAL: Very severe error events that will presumably lead the application to abort.
//   - Configuration required for startup is missing
//   - History database cannot be opened

// Standard Log Message Patterns
//
// Use these patterns for consistent messaging:
//
// Starting operations: "Starting [operation]"
// Completed operations: "Completed [operation]" or "[Operation] completed successfully"
// Failed operations: "Failed to [operation]"
// Retrying operations: "Retrying [operation] (attempt X/Y)"
// Skipping operations: "Skipping [operation]: [reason]"
// Configuration: "Loaded [config type] configuration" / "Using default [setting]"
// External services: "[Provider] request completed" / "Failed to connect to [provider]"

// Example Usage:
//
// logger.WithFields(logrus.Fields{
//     LogFieldConversation: privacy.MaskConversation(name),
//     LogFieldProvider:     providerID,
//     LogFieldMessageKind:  "text",
// }).Info("Dispatching message")
//
// logger.WithFields(logrus.Fields{
//     LogFieldProvider:  providerID,
//     LogFieldOperation: "extract_response",
//     LogFieldDuration:  duration.Milliseconds(),
//     LogFieldAttempt:   attempt,
// }).Debug("Response extraction attempt completed")
