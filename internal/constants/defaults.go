package constants

// Default orchestrator loop configuration values
const (
	DefaultLoopIntervalSec    = 5
	DefaultResponseTimeoutSec = 60
	DefaultResponsePollSec    = 2
	DefaultImagePollSec       = 5
	DefaultUploadSettleSec    = 2
	DefaultLoginWaitSec       = 1
	DefaultServerPort         = 8180
	DefaultHistoryTurns       = 10
)

// Default retry configuration for provider transports
const (
	DefaultRetryBackoffMs = 500
	DefaultMaxBackoffMs   = 30000
	DefaultMaxAttempts    = 3
)

// Default media configuration values
const (
	DefaultMaxImageSizeKB     = 500
	DefaultMediaMaxAgeSec     = 3600
	DefaultCleanupIntervalSec = 600
)

// Default timeout values
const (
	DefaultDatabaseRetryAttempts      = 3
	DefaultGracefulShutdownSec        = 30
	DefaultSessionHealthCheckSec      = 30
	DefaultSessionMonitorInitDelaySec = 10
	DefaultSessionProbeTimeoutSec     = 10
	DefaultServerReadTimeoutSec       = 15
	DefaultServerWriteTimeoutSec      = 15
	DefaultServerIdleTimeoutSec       = 60
	DefaultBrowserNavTimeoutSec       = 30
)

// Prompt and model defaults
const (
	DefaultTextMaxTokens   = 700
	DefaultVisionMaxTokens = 60
	DefaultTemperature     = 0.7
)

// Validation bounds
const (
	MaxConversationNameLength = 64
	MaxProviderIDLength       = 32
	MaxTemplateLength         = 4096
	MaxTimeoutSec             = 3600
	MaxRetentionDays          = 3650
)

// Fingerprint derivation: arrival timestamps are truncated to this
// granularity before hashing. The messaging surface renders send times
// at minute resolution, so coarser truncation would merge distinct
// messages and finer truncation would split one message across polls.
const FingerprintGranularitySec = 60

// Privacy settings
const (
	DefaultMaskKeepLength = 4
)

// History-at-rest encryption defaults. Salts are overridable via
// CHATBRIDGE_ENCRYPTION_SALT / CHATBRIDGE_ENCRYPTION_LOOKUP_SALT;
// overrides shorter than MinSaltLength fall back to these.
const (
	EncryptionSalt       = "chatbridge-salt-v1"
	EncryptionLookupSalt = "chatbridge-lookup-salt-v1"
	MinSaltLength        = 16
	MinSecretLength      = 32
)
