package errors

import (
	"github.com/sirupsen/logrus"
)

// entryFor builds a log entry carrying the structured fields of an
// AppError, falling back to the plain error for foreign errors.
func entryFor(logger *logrus.Logger, err error) *logrus.Entry {
	entry := logger.WithError(err)

	if appErr, ok := err.(*AppError); ok {
		entry = entry.WithFields(logrus.Fields{
			"error_code": appErr.Code,
			"retryable":  appErr.Retryable,
		})
		for k, v := range appErr.Context {
			entry = entry.WithField(k, v)
		}
	}

	return entry
}

// LogError logs an error with structured context
func LogError(logger *logrus.Logger, err error, message string, fields ...logrus.Fields) {
	entry := entryFor(logger, err)
	for _, field := range fields {
		entry = entry.WithFields(field)
	}
	entry.Error(message)
}

// LogWarn logs a warning with structured context
func LogWarn(logger *logrus.Logger, err error, message string, fields ...logrus.Fields) {
	entry := entryFor(logger, err)
	for _, field := range fields {
		entry = entry.WithFields(field)
	}
	entry.Warn(message)
}

// LogDispatchFailure logs a failed dispatch at the level its
// classification deserves: skips at debug, retryable failures at warn,
// terminal failures at error.
func LogDispatchFailure(logger *logrus.Logger, err error, fields logrus.Fields) {
	entry := entryFor(logger, err).WithFields(fields)

	switch {
	case IsSkip(err):
		entry.Debug("Skipping conversation this cycle")
	case IsRetryable(err):
		entry.Warn("Dispatch failed, will retry next cycle")
	default:
		entry.Error("Dispatch failed permanently")
	}
}
