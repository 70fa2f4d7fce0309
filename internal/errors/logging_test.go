package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCaptureLogger() (*logrus.Logger, *bytes.Buffer) {
	logger := logrus.New()
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return logger, buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogErrorIncludesStructuredFields(t *testing.T) {
	logger, buf := newCaptureLogger()

	err := NewTransportError("gemini", "/v1beta/models", 500, fmt.Errorf("boom"))
	LogError(logger, err, "dispatch failed", logrus.Fields{"conversation": "Capivara"})

	entry := lastEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "dispatch failed", entry["msg"])
	assert.Equal(t, string(ErrCodeTransportFailure), entry["error_code"])
	assert.Equal(t, true, entry["retryable"])
	assert.Equal(t, "Capivara", entry["conversation"])
	assert.Equal(t, "gemini", entry["provider"])
}

func TestLogWarnPlainError(t *testing.T) {
	logger, buf := newCaptureLogger()

	LogWarn(logger, fmt.Errorf("stale read"), "poll failed")

	entry := lastEntry(t, buf)
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "poll failed", entry["msg"])
	assert.NotContains(t, entry, "error_code")
}

func TestLogDispatchFailureLevels(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
	}{
		{
			name:      "skip logs at debug",
			err:       NewSessionNotReadyError("claude-web", "awaiting_login"),
			wantLevel: "debug",
		},
		{
			name:      "retryable logs at warn",
			err:       NewExtractionTimeoutError("claude-web", "30s"),
			wantLevel: "warning",
		},
		{
			name:      "terminal logs at error",
			err:       NewMalformedInputError("empty prompt"),
			wantLevel: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newCaptureLogger()

			LogDispatchFailure(logger, tt.err, logrus.Fields{"conversation": "VanDog"})

			entry := lastEntry(t, buf)
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "VanDog", entry["conversation"])
		})
	}
}
