package features

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FlagsConfig represents feature flags configuration
type FlagsConfig struct {
	// Map of flag name to enabled state
	Flags map[string]bool `json:"flags"`

	// Environment-based overrides
	EnableAll  bool `json:"enable_all"`
	DisableAll bool `json:"disable_all"`
}

// DefaultFlagsConfig returns default configuration
func DefaultFlagsConfig() FlagsConfig {
	return FlagsConfig{
		Flags:      make(map[string]bool),
		EnableAll:  false,
		DisableAll: false,
	}
}

// LoadFromConfig applies configuration to the flag manager
func (fm *FlagManager) LoadFromConfig(config FlagsConfig) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	// First apply explicit flag settings
	for flagName, enabled := range config.Flags {
		if flag, exists := fm.flags[flagName]; exists {
			flag.Enabled = enabled
			flag.UpdatedAt = time.Now()
		} else {
			// Create flag if it doesn't exist
			now := time.Now()
			fm.flags[flagName] = &Flag{
				Name:        flagName,
				Enabled:     enabled,
				Description: "Flag created from configuration",
				CreatedAt:   now,
				UpdatedAt:   now,
				Tags:        []string{"config"},
			}
		}
	}

	// Apply global overrides
	if config.EnableAll {
		for _, flag := range fm.flags {
			flag.Enabled = true
			flag.UpdatedAt = time.Now()
		}
	} else if config.DisableAll {
		for _, flag := range fm.flags {
			flag.Enabled = false
			flag.UpdatedAt = time.Now()
		}
	}

	return nil
}

// LoadFromEnvironment loads feature flags from environment variables
// Environment variables should be in format: CHATBRIDGE_FEATURE_<FLAG_NAME>=true/false
func (fm *FlagManager) LoadFromEnvironment() {
	const (
		envPrefix     = "CHATBRIDGE_FEATURE_"
		envEnableAll  = "CHATBRIDGE_FEATURES_ENABLE_ALL"
		envDisableAll = "CHATBRIDGE_FEATURES_DISABLE_ALL"
	)

	fm.mu.Lock()
	defer fm.mu.Unlock()

	// Check for global enable/disable
	if envValue := os.Getenv(envEnableAll); envValue != "" {
		if enableAll, _ := strconv.ParseBool(envValue); enableAll {
			for _, flag := range fm.flags {
				flag.Enabled = true
				flag.UpdatedAt = time.Now()
			}
			return // Skip individual flag processing if all enabled
		}
	}

	if envValue := os.Getenv(envDisableAll); envValue != "" {
		if disableAll, _ := strconv.ParseBool(envValue); disableAll {
			for _, flag := range fm.flags {
				flag.Enabled = false
				flag.UpdatedAt = time.Now()
			}
			return // Skip individual flag processing if all disabled
		}
	}

	// Process all environment variables
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}

		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		flagName := strings.ToLower(strings.TrimPrefix(parts[0], envPrefix))
		if enabled, err := strconv.ParseBool(parts[1]); err == nil {
			if flag, exists := fm.flags[flagName]; exists {
				flag.Enabled = enabled
				flag.UpdatedAt = time.Now()
			} else {
				// Create flag if it doesn't exist
				now := time.Now()
				fm.flags[flagName] = &Flag{
					Name:        flagName,
					Enabled:     enabled,
					Description: "Flag created from environment variable",
					CreatedAt:   now,
					UpdatedAt:   now,
					Tags:        []string{"env"},
				}
			}
		}
	}
}

// ToConfig exports current flag state as configuration
func (fm *FlagManager) ToConfig() FlagsConfig {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	config := FlagsConfig{
		Flags: make(map[string]bool),
	}

	for name, flag := range fm.flags {
		config.Flags[name] = flag.Enabled
	}

	return config
}

// ValidateConfig validates feature flags configuration
func ValidateConfig(config FlagsConfig) error {
	if config.EnableAll && config.DisableAll {
		return fmt.Errorf("cannot set both enable_all and disable_all to true")
	}

	return nil
}
