package integration_test

import (
	"chatbridge/internal/models"
)

// TestFixtures provides predefined configuration data for consistent
// scenarios.
type TestFixtures struct{}

// NewTestFixtures creates a new TestFixtures instance.
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{}
}

// Providers returns standard provider entries: a browser-tab provider
// and a hosted API provider.
func (f *TestFixtures) Providers() map[string]models.ProviderConfig {
	return map[string]models.ProviderConfig{
		"claude-web": {
			Kind: models.TransportUI,
			URL:  "https://claude.ai/new",
			Selectors: map[string]string{
				"input":     "div[contenteditable='true']",
				"response":  "div[data-testid='assistant-message']",
				"logged_in": "div[data-testid='chat-input']",
			},
		},
		"openai": {
			Kind:            models.TransportAPI,
			Platform:        "openai",
			APIKeyEnv:       "CHATBRIDGE_TEST_OPENAI_KEY",
			MaxTokens:       256,
			VisionMaxTokens: 128,
			Temperature:     0.2,
		},
	}
}

// Conversations returns the standard conversation mappings used across
// the scenarios: one routed to the browser-tab provider, one to the
// hosted API provider.
func (f *TestFixtures) Conversations() map[string]models.ConversationMapping {
	return map[string]models.ConversationMapping{
		"capivara": {
			Name:               "Capivara",
			Provider:           "claude-web",
			Kind:               models.TransportUI,
			ResponseTimeoutSec: 30,
			Enabled:            true,
		},
		"vandog": {
			Name:               "VanDog",
			Provider:           "openai",
			Kind:               models.TransportAPI,
			TextModel:          "gpt-4o-mini",
			VisionModel:        "gpt-4o",
			ImageTemplate:      "What is in this picture?",
			ResponseTimeoutSec: 30,
			Enabled:            true,
		},
	}
}

// MediaSamples provides test media content.
type MediaSamples struct{}

// NewMediaSamples creates a new MediaSamples instance.
func NewMediaSamples() *MediaSamples {
	return &MediaSamples{}
}

// SmallImagePNG returns a minimal valid PNG image.
func (m *MediaSamples) SmallImagePNG() []byte {
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}
}
