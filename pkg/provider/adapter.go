package provider

import (
	"context"
	"time"

	"chatbridge/internal/models"
	"chatbridge/pkg/constants"

	"github.com/sirupsen/logrus"
)

// Request carries one question to a provider. ImagePath, when set, points
// at a local temp file already materialized by the media store. Model is
// the conversation's resolved model id, meaningful to API transports
// only; PollInterval is the conversation's extraction poll override,
// meaningful to UI transports only. History holds recent conversation
// turns for adapters that can use them.
type Request struct {
	Prompt       string
	ImagePath    string
	Model        string
	Timeout      time.Duration
	PollInterval time.Duration
	History      []models.Turn
}

// Adapter answers prompts on behalf of one configured provider. Ask
// blocks until a response is available or Timeout elapses; it never
// blocks indefinitely.
type Adapter interface {
	Name() string
	Kind() models.TransportKind
	Ask(ctx context.Context, req Request) (string, error)
}

// TruncatePrompt bounds a prompt to the submission ceiling, cutting on
// rune boundaries so multi-byte text is never split mid-character.
func TruncatePrompt(prompt string, logger *logrus.Logger) string {
	runes := []rune(prompt)
	if len(runes) <= constants.MaxPromptChars {
		return prompt
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"length": len(runes),
			"limit":  constants.MaxPromptChars,
		}).Warn("Prompt exceeds submission ceiling, truncating")
	}

	return string(runes[:constants.MaxPromptChars])
}
