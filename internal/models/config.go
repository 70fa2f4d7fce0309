package models

// TransportKind selects how a provider is reached.
type TransportKind string

const (
	TransportUI  TransportKind = "ui"
	TransportAPI TransportKind = "api"
)

// Config holds the application configuration
type Config struct {
	Chat          ChatConfig                `json:"chat"`
	Providers     map[string]ProviderConfig `json:"providers"`
	Conversations []ConversationMapping     `json:"conversations"`
	CacheFile     string                    `json:"cache_file"`
	HistoryDB     string                    `json:"history_db"`
	MediaDir      string                    `json:"media_dir"`
	Browser       BrowserConfig             `json:"browser"`
	Delays        DelayConfig               `json:"delays"`
	Retry         RetryConfig               `json:"retry"`
	Server        ServerConfig              `json:"server"`
	Tracing       TracingConfig             `json:"tracing"`
	Features      map[string]bool           `json:"features"`
	Retention     RetentionConfig           `json:"retention"`
	LogLevel      string                    `json:"log_level"`
}

// ChatConfig describes the messaging surface the orchestrator watches.
type ChatConfig struct {
	URL       string            `json:"url"`
	Ignore    []string          `json:"ignore"`
	Selectors map[string]string `json:"selectors"`
}

// ProviderConfig describes one reachable provider endpoint. UI providers
// carry a URL and selector overrides; API providers carry a platform name
// and credential source.
type ProviderConfig struct {
	Kind            TransportKind     `json:"kind"`
	URL             string            `json:"url"`
	Selectors       map[string]string `json:"selectors"`
	Platform        string            `json:"platform"`
	APIBase         string            `json:"api_base"`
	APIKeyEnv       string            `json:"api_key_env"`
	MaxTokens       int               `json:"max_tokens"`
	VisionMaxTokens int               `json:"vision_max_tokens"`
	Temperature     float64           `json:"temperature"`
}

// ConversationMapping binds a conversation display name to a provider and
// the model/template choices used when dispatching its messages.
// Conversations are declared as an array so that the file's order is the
// orchestrator's processing order.
type ConversationMapping struct {
	Name               string `json:"name"`
	Provider           string `json:"provider"`
	TextModel          string `json:"text_model"`
	VisionModel        string `json:"vision_model"`
	TextTemplate       string `json:"text_template"`
	ImageTemplate      string `json:"image_template"`
	ResponseTimeoutSec int    `json:"response_timeout_sec"`
	ResponsePollSec    int    `json:"response_poll_sec"`
	Enabled            bool   `json:"enabled"`

	// Kind is resolved from the provider entry at load time.
	Kind TransportKind `json:"-"`
}

// BrowserConfig holds the shared browser session settings.
type BrowserConfig struct {
	ProfileDir    string `json:"profile_dir"`
	Headless      bool   `json:"headless"`
	UserAgent     string `json:"user_agent"`
	NavTimeoutSec int    `json:"nav_timeout_sec"`
}

// DelayConfig holds the per-phase delay and timeout values.
type DelayConfig struct {
	LoopIntervalSec    int `json:"loop_interval_sec"`
	ResponsePollSec    int `json:"response_poll_sec"`
	ImagePollSec       int `json:"image_poll_sec"`
	UploadSettleSec    int `json:"upload_settle_sec"`
	ResponseTimeoutSec int `json:"response_timeout_sec"`
	LoginWaitSec       int `json:"login_wait_sec"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts"`
}

// ServerConfig holds the admin/status server settings.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// TracingConfig holds the OpenTelemetry settings consumed at startup.
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	UseStdout    bool    `json:"use_stdout"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	Environment  string  `json:"environment"`
}

// RetentionConfig bounds the growth of persisted state. Zero days means
// keep forever.
type RetentionConfig struct {
	CacheDays      int `json:"cache_days"`
	HistoryDays    int `json:"history_days"`
	MediaMaxAgeSec int `json:"media_max_age_sec"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
