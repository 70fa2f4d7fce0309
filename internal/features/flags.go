package features

import (
	"encoding/json"
	"sync"
	"time"
)

// Flag represents a feature flag with metadata
type Flag struct {
	Name        string    `json:"name"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tags        []string  `json:"tags,omitempty"`
}

// FlagManager manages feature flags with thread-safe operations
type FlagManager struct {
	flags map[string]*Flag
	mu    sync.RWMutex
}

// NewFlagManager creates a new feature flag manager
func NewFlagManager() *FlagManager {
	return &FlagManager{
		flags: make(map[string]*Flag),
	}
}

// Define flag constants for type safety
const (
	// Core feature flags
	FlagHistoryPersistence = "history_persistence"
	FlagDistributedTracing = "distributed_tracing"
	FlagCircuitBreaker     = "circuit_breaker"
	FlagLiveEvents         = "live_events"

	// Pipeline features
	FlagMediaCompression = "media_compression"
	FlagPageRefresh      = "page_refresh"
	FlagResponseCleaning = "response_cleaning"
)

// FlagDefinition contains metadata about a flag
type FlagDefinition struct {
	Name         string
	Description  string
	DefaultValue bool
	Tags         []string
}

// DefaultFlags defines all available feature flags with their defaults
var DefaultFlags = []FlagDefinition{
	// Core features - generally enabled by default
	{FlagHistoryPersistence, "Persist conversation turns for API provider context", true, []string{"core", "storage"}},
	{FlagDistributedTracing, "Enable OpenTelemetry distributed tracing", true, []string{"core", "observability"}},
	{FlagCircuitBreaker, "Enable circuit breaker for provider API calls", true, []string{"core", "reliability"}},
	{FlagLiveEvents, "Stream dispatch results over the events websocket", true, []string{"core", "observability"}},

	// Pipeline features
	{FlagMediaCompression, "Compress inbound images before provider upload", true, []string{"pipeline", "media"}},
	{FlagPageRefresh, "Refresh browser provider pages after each dispatch", true, []string{"pipeline", "browser"}},
	{FlagResponseCleaning, "Strip citation markers and artifacts from responses", true, []string{"pipeline", "text"}},
}

// InitializeDefaults sets up all default flags
func (fm *FlagManager) InitializeDefaults() {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	now := time.Now()
	for _, def := range DefaultFlags {
		if _, exists := fm.flags[def.Name]; !exists {
			fm.flags[def.Name] = &Flag{
				Name:        def.Name,
				Enabled:     def.DefaultValue,
				Description: def.Description,
				CreatedAt:   now,
				UpdatedAt:   now,
				Tags:        def.Tags,
			}
		}
	}
}

// IsEnabled checks if a feature flag is enabled
func (fm *FlagManager) IsEnabled(flagName string) bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return false
	}

	return flag.Enabled
}

// Enable enables a feature flag
func (fm *FlagManager) Enable(flagName string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return ErrFlagNotFound{Name: flagName}
	}

	flag.Enabled = true
	flag.UpdatedAt = time.Now()
	return nil
}

// Disable disables a feature flag
func (fm *FlagManager) Disable(flagName string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return ErrFlagNotFound{Name: flagName}
	}

	flag.Enabled = false
	flag.UpdatedAt = time.Now()
	return nil
}

// GetFlag returns a copy of the flag information
func (fm *FlagManager) GetFlag(flagName string) (*Flag, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	flag, exists := fm.flags[flagName]
	if !exists {
		return nil, ErrFlagNotFound{Name: flagName}
	}

	// Return a copy to prevent external modification
	flagCopy := *flag
	if flag.Tags != nil {
		flagCopy.Tags = make([]string, len(flag.Tags))
		copy(flagCopy.Tags, flag.Tags)
	}

	return &flagCopy, nil
}

// ListFlags returns all flags, optionally filtered by tags
func (fm *FlagManager) ListFlags(filterTags ...string) []*Flag {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	var result []*Flag

	for _, flag := range fm.flags {
		if len(filterTags) == 0 || hasAnyTag(flag.Tags, filterTags) {
			flagCopy := *flag
			if flag.Tags != nil {
				flagCopy.Tags = make([]string, len(flag.Tags))
				copy(flagCopy.Tags, flag.Tags)
			}
			result = append(result, &flagCopy)
		}
	}

	return result
}

func hasAnyTag(tags, filterTags []string) bool {
	for _, filterTag := range filterTags {
		for _, tag := range tags {
			if tag == filterTag {
				return true
			}
		}
	}
	return false
}

// ExportJSON exports all flags as JSON
func (fm *FlagManager) ExportJSON() ([]byte, error) {
	flags := fm.ListFlags()
	return json.MarshalIndent(flags, "", "  ")
}

// Global flag manager instance
var globalFlagManager = NewFlagManager()

// Initialize sets up the global flag manager with defaults
func Initialize() {
	globalFlagManager.InitializeDefaults()
}

// IsEnabled checks if a feature flag is enabled globally
func IsEnabled(flagName string) bool {
	return globalFlagManager.IsEnabled(flagName)
}

// Enable enables a feature flag globally
func Enable(flagName string) error {
	return globalFlagManager.Enable(flagName)
}

// Disable disables a feature flag globally
func Disable(flagName string) error {
	return globalFlagManager.Disable(flagName)
}

// GetGlobalManager returns the global flag manager
func GetGlobalManager() *FlagManager {
	return globalFlagManager
}

// Custom errors
type ErrFlagNotFound struct {
	Name string
}

func (e ErrFlagNotFound) Error() string {
	return "feature flag not found: " + e.Name
}
