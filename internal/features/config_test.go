package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromConfig(t *testing.T) {
	fm := NewFlagManager()
	fm.InitializeDefaults()

	cfg := DefaultFlagsConfig()
	cfg.Flags[FlagPageRefresh] = false
	cfg.Flags["custom_flag"] = true

	require.NoError(t, fm.LoadFromConfig(cfg))

	assert.False(t, fm.IsEnabled(FlagPageRefresh))
	assert.True(t, fm.IsEnabled("custom_flag"))

	flag, err := fm.GetFlag("custom_flag")
	require.NoError(t, err)
	assert.Contains(t, flag.Tags, "config")
}

func TestLoadFromConfig_EnableAll(t *testing.T) {
	fm := NewFlagManager()
	fm.InitializeDefaults()
	require.NoError(t, fm.Disable(FlagMediaCompression))

	cfg := DefaultFlagsConfig()
	cfg.EnableAll = true
	require.NoError(t, fm.LoadFromConfig(cfg))

	for _, flag := range fm.ListFlags() {
		assert.True(t, flag.Enabled, "flag %s should be enabled", flag.Name)
	}
}

func TestLoadFromConfig_DisableAll(t *testing.T) {
	fm := NewFlagManager()
	fm.InitializeDefaults()

	cfg := DefaultFlagsConfig()
	cfg.DisableAll = true
	require.NoError(t, fm.LoadFromConfig(cfg))

	for _, flag := range fm.ListFlags() {
		assert.False(t, flag.Enabled, "flag %s should be disabled", flag.Name)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	fm := NewFlagManager()
	fm.InitializeDefaults()

	t.Setenv("CHATBRIDGE_FEATURE_PAGE_REFRESH", "false")
	t.Setenv("CHATBRIDGE_FEATURE_BRAND_NEW", "true")

	fm.LoadFromEnvironment()

	assert.False(t, fm.IsEnabled(FlagPageRefresh))
	assert.True(t, fm.IsEnabled("brand_new"))
}

func TestLoadFromEnvironment_DisableAll(t *testing.T) {
	fm := NewFlagManager()
	fm.InitializeDefaults()

	t.Setenv("CHATBRIDGE_FEATURES_DISABLE_ALL", "true")
	t.Setenv("CHATBRIDGE_FEATURE_PAGE_REFRESH", "true")

	fm.LoadFromEnvironment()

	// The global override wins and individual variables are skipped.
	assert.False(t, fm.IsEnabled(FlagPageRefresh))
	assert.False(t, fm.IsEnabled(FlagCircuitBreaker))
}

func TestLoadFromEnvironment_InvalidBoolIgnored(t *testing.T) {
	fm := NewFlagManager()
	fm.InitializeDefaults()

	t.Setenv("CHATBRIDGE_FEATURE_PAGE_REFRESH", "not-a-bool")

	fm.LoadFromEnvironment()

	assert.True(t, fm.IsEnabled(FlagPageRefresh))
}

func TestToConfig(t *testing.T) {
	fm := NewFlagManager()
	fm.InitializeDefaults()
	require.NoError(t, fm.Disable(FlagResponseCleaning))

	cfg := fm.ToConfig()

	assert.Len(t, cfg.Flags, len(DefaultFlags))
	assert.False(t, cfg.Flags[FlagResponseCleaning])
	assert.True(t, cfg.Flags[FlagHistoryPersistence])
}

func TestValidateConfig(t *testing.T) {
	valid := DefaultFlagsConfig()
	assert.NoError(t, ValidateConfig(valid))

	conflicting := DefaultFlagsConfig()
	conflicting.EnableAll = true
	conflicting.DisableAll = true
	assert.Error(t, ValidateConfig(conflicting))
}
