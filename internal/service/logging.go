package service

import (
	"context"

	"chatbridge/internal/models"
	"chatbridge/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// LogMessageDetected logs a newly detected chat message with privacy controls.
// Verbose mode logs conversation names and content previews in the clear.
func LogMessageDetected(ctx context.Context, logger *logrus.Logger, msg models.Message) {
	if IsVerboseLogging(ctx) {
		logger.WithFields(logrus.Fields{
			LogFieldConversation: msg.Conversation,
			LogFieldMessageKind:  string(msg.Kind),
			LogFieldFingerprint:  msg.Fingerprint,
			"content":            privacy.PreviewContent(msg.Content),
		}).Info("New message detected")
	} else {
		logger.WithFields(logrus.Fields{
			LogFieldConversation: privacy.MaskConversation(msg.Conversation),
			LogFieldMessageKind:  string(msg.Kind),
			LogFieldFingerprint:  msg.Fingerprint,
		}).Info("New message detected")
	}
}

// LogPollActivity logs poll cycle output with privacy controls
func LogPollActivity(ctx context.Context, logger *logrus.Logger, cycleID string, messageCount int) {
	if messageCount > 0 {
		logger.WithFields(logrus.Fields{
			LogFieldCycleID: cycleID,
			LogFieldCount:   messageCount,
		}).Info("Found new chat messages")
	} else {
		logger.WithField(LogFieldCycleID, cycleID).Debug("No new chat messages found")
	}
}

// LogDispatchResult logs the outcome of one dispatch with privacy controls
func LogDispatchResult(ctx context.Context, logger *logrus.Logger, result models.DispatchResult) {
	fields := logrus.Fields{
		LogFieldConversation: privacy.MaskConversation(result.Conversation),
		LogFieldProvider:     result.Provider,
		LogFieldMessageKind:  string(result.Kind),
		LogFieldFingerprint:  result.Fingerprint,
		LogFieldDuration:     result.Elapsed.Milliseconds(),
	}
	if IsVerboseLogging(ctx) {
		fields[LogFieldConversation] = result.Conversation
		fields["response"] = privacy.PreviewContent(result.Response)
	}

	switch result.Status {
	case models.DispatchDelivered:
		logger.WithFields(fields).Info("Reply delivered")
	case models.DispatchSkipped:
		logger.WithFields(fields).WithField("reason", result.FailureReason).Debug("Dispatch skipped")
	default:
		logger.WithFields(fields).WithField("reason", result.FailureReason).Warn("Dispatch failed")
	}
}
