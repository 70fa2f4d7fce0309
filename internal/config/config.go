package config

import (
	"encoding/json"
	"fmt"
	"os"

	"chatbridge/internal/constants"
	"chatbridge/internal/models"
	"chatbridge/internal/validation"
)

var (
	ErrMissingChatURL         = models.ConfigError{Message: "missing chat surface URL"}
	ErrNoConversations        = models.ConfigError{Message: "conversations array is required and must contain at least one mapping"}
	ErrNoEnabledConversations = models.ConfigError{Message: "no conversation mapping is enabled"}
)

// LoadConfig reads the configuration file, applies environment overrides,
// then validates and normalizes the result. Overrides run before
// validation so an environment variable can satisfy a required field.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - path comes from the operator's --config flag
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	applyDefaults(c)

	if c.Chat.URL == "" {
		return ErrMissingChatURL
	}
	if len(c.Conversations) == 0 {
		return ErrNoConversations
	}

	for id, provider := range c.Providers {
		if err := validation.ValidateProviderID(id); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid provider id %q: %v", id, err)}
		}

		switch provider.Kind {
		case models.TransportUI:
			if provider.URL == "" {
				return models.ConfigError{Message: fmt.Sprintf("provider %q is a UI provider and must set url", id)}
			}
		case models.TransportAPI:
			if provider.Platform == "" {
				return models.ConfigError{Message: fmt.Sprintf("provider %q is an API provider and must set platform", id)}
			}
		default:
			return models.ConfigError{Message: fmt.Sprintf("provider %q has unknown transport kind %q", id, provider.Kind)}
		}

		if provider.MaxTokens <= 0 {
			provider.MaxTokens = constants.DefaultTextMaxTokens
		}
		if provider.VisionMaxTokens <= 0 {
			provider.VisionMaxTokens = constants.DefaultVisionMaxTokens
		}
		if provider.Temperature <= 0 {
			provider.Temperature = constants.DefaultTemperature
		}
		c.Providers[id] = provider
	}

	names := make(map[string]bool)
	enabled := 0
	for i := range c.Conversations {
		mapping := &c.Conversations[i]

		if err := validation.ValidateConversationName(mapping.Name); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("conversation %d: %v", i, err)}
		}
		if names[mapping.Name] {
			return models.ConfigError{Message: fmt.Sprintf("duplicate conversation name: %s", mapping.Name)}
		}
		names[mapping.Name] = true

		provider, ok := c.Providers[mapping.Provider]
		if !ok {
			return models.ConfigError{Message: fmt.Sprintf("conversation %q references unknown provider %q", mapping.Name, mapping.Provider)}
		}
		mapping.Kind = provider.Kind

		if provider.Kind == models.TransportAPI && mapping.TextModel == "" {
			return models.ConfigError{Message: fmt.Sprintf("conversation %q uses an API provider and must set text_model", mapping.Name)}
		}

		if err := validation.ValidateTemplate(mapping.TextTemplate, "text_template"); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("conversation %q: %v", mapping.Name, err)}
		}
		if err := validation.ValidateTemplate(mapping.ImageTemplate, "image_template"); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("conversation %q: %v", mapping.Name, err)}
		}

		// Zero means inherit the global value; negative is always a
		// mistake in the file.
		if mapping.ResponseTimeoutSec < 0 || mapping.ResponsePollSec < 0 {
			return models.ConfigError{Message: fmt.Sprintf("conversation %q has a negative timeout", mapping.Name)}
		}
		if mapping.ResponseTimeoutSec == 0 {
			mapping.ResponseTimeoutSec = c.Delays.ResponseTimeoutSec
		}
		if mapping.ResponsePollSec == 0 {
			mapping.ResponsePollSec = c.Delays.ResponsePollSec
		}
		if err := validation.ValidateTimeout(mapping.ResponseTimeoutSec, "response_timeout_sec"); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("conversation %q: %v", mapping.Name, err)}
		}

		if mapping.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoEnabledConversations
	}

	// Zero disables a retention sweep; anything else must be a sane
	// day count.
	if c.Retention.HistoryDays != 0 {
		if err := validation.ValidateRetentionDays(c.Retention.HistoryDays); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("retention.history_days: %v", err)}
		}
	}
	if c.Retention.CacheDays != 0 {
		if err := validation.ValidateRetentionDays(c.Retention.CacheDays); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("retention.cache_days: %v", err)}
		}
	}

	return nil
}

func applyDefaults(c *models.Config) {
	if c.CacheFile == "" {
		c.CacheFile = "cache.json"
	}
	if c.HistoryDB == "" {
		c.HistoryDB = "history.db"
	}
	if c.MediaDir == "" {
		c.MediaDir = "media"
	}
	if c.Browser.ProfileDir == "" {
		c.Browser.ProfileDir = "profile"
	}
	if c.Browser.NavTimeoutSec <= 0 {
		c.Browser.NavTimeoutSec = constants.DefaultBrowserNavTimeoutSec
	}

	if c.Delays.LoopIntervalSec <= 0 {
		c.Delays.LoopIntervalSec = constants.DefaultLoopIntervalSec
	}
	if c.Delays.ResponsePollSec <= 0 {
		c.Delays.ResponsePollSec = constants.DefaultResponsePollSec
	}
	if c.Delays.ImagePollSec <= 0 {
		c.Delays.ImagePollSec = constants.DefaultImagePollSec
	}
	if c.Delays.UploadSettleSec <= 0 {
		c.Delays.UploadSettleSec = constants.DefaultUploadSettleSec
	}
	if c.Delays.ResponseTimeoutSec <= 0 {
		c.Delays.ResponseTimeoutSec = constants.DefaultResponseTimeoutSec
	}
	if c.Delays.LoginWaitSec <= 0 {
		c.Delays.LoginWaitSec = constants.DefaultLoginWaitSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}

	if c.Retention.MediaMaxAgeSec <= 0 {
		c.Retention.MediaMaxAgeSec = constants.DefaultMediaMaxAgeSec
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("CHATBRIDGE_CHAT_URL"); url != "" {
		c.Chat.URL = url
	}
	if path := os.Getenv("CHATBRIDGE_CACHE_FILE"); path != "" {
		c.CacheFile = path
	}
	if path := os.Getenv("CHATBRIDGE_HISTORY_DB"); path != "" {
		c.HistoryDB = path
	}
	if dir := os.Getenv("CHATBRIDGE_MEDIA_DIR"); dir != "" {
		c.MediaDir = dir
	}
}
