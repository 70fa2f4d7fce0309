package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"chatbridge/internal/errors"
	"chatbridge/internal/models"
	"chatbridge/internal/retry"
	"chatbridge/pkg/circuitbreaker"
	"chatbridge/pkg/constants"
	"chatbridge/pkg/provider"

	"github.com/sirupsen/logrus"
)

// Default API bases per platform. A provider entry may point elsewhere
// through api_base, which tests use to target local servers.
const (
	openAIBase     = "https://api.openai.com/v1"
	perplexityBase = "https://api.perplexity.ai"
	grokBase       = "https://api.x.ai/v1"
	anthropicBase  = "https://api.anthropic.com/v1"
	geminiBase     = "https://generativelanguage.googleapis.com/v1beta"

	anthropicVersion = "2023-06-01"
)

const (
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// payload is the platform-independent content of one completion request.
type payload struct {
	Model       string
	Prompt      string
	History     []models.Turn
	ImageB64    string
	ImageMime   string
	MaxTokens   int
	Temperature float64
}

// wireFormat renders and reads one platform's HTTP representation.
type wireFormat interface {
	endpoint(base, model, apiKey string) string
	headers(apiKey string) map[string]string
	body(p payload) interface{}
	text(respBody []byte) (string, error)
}

// Client asks one hosted AI platform over HTTP. A single instance serves
// every conversation mapped to its provider id, so the circuit breaker
// observes the provider's full traffic.
type Client struct {
	name         string
	platform     string
	base         string
	apiKey       string
	keyEnv       string
	maxTokens    int
	visionTokens int
	temperature  float64
	wire         wireFormat
	httpClient   *http.Client
	backoff      *retry.Backoff
	breaker      *circuitbreaker.CircuitBreaker
	logger       *logrus.Logger
}

// New builds an API adapter for the named provider entry. The API key is
// read from the environment here; when it is absent the adapter still
// constructs but reports session-not-ready per ask, so the orchestrator
// skips the conversation instead of failing its messages.
func New(name string, cfg models.ProviderConfig, retryCfg models.RetryConfig, logger *logrus.Logger) (*Client, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}

	platform := strings.ToLower(cfg.Platform)

	var base string
	var wire wireFormat
	switch platform {
	case "openai":
		base, wire = openAIBase, openAIWire{}
	case "perplexity":
		base, wire = perplexityBase, openAIWire{}
	case "grok":
		base, wire = grokBase, openAIWire{}
	case "claude":
		base, wire = anthropicBase, anthropicWire{}
	case "gemini":
		base, wire = geminiBase, geminiWire{}
	default:
		return nil, errors.New(errors.ErrCodeConfiguration,
			fmt.Sprintf("unsupported API platform: %s", cfg.Platform))
	}
	if cfg.APIBase != "" {
		base = strings.TrimRight(cfg.APIBase, "/")
	}

	apiKey := os.Getenv(KeyEnvName(cfg))
	if apiKey == "" {
		logger.WithFields(logrus.Fields{
			"provider": name,
			"env":      KeyEnvName(cfg),
		}).Warn("API key not set, provider will report session not ready")
	}

	envPrefix := strings.ToUpper(platform)

	return &Client{
		name:         name,
		platform:     platform,
		base:         base,
		apiKey:       apiKey,
		keyEnv:       KeyEnvName(cfg),
		maxTokens:    envInt(envPrefix+"_MAX_TOKENS", cfg.MaxTokens),
		visionTokens: cfg.VisionMaxTokens,
		temperature:  envFloat(envPrefix+"_TEMPERATURE", cfg.Temperature),
		wire:         wire,
		httpClient:   &http.Client{Timeout: constants.DefaultHTTPTimeoutSec * time.Second},
		backoff:      retry.NewBackoff(retry.FromSettings(retryCfg.InitialBackoffMs, retryCfg.MaxBackoffMs, retryCfg.MaxAttempts)),
		breaker:      circuitbreaker.NewWithLogger(name, breakerMaxFailures, breakerResetTimeout, logger),
		logger:       logger,
	}, nil
}

// KeyEnvName returns the environment variable holding the provider's
// API key: the configured api_key_env when set, <PLATFORM>_API_KEY
// otherwise.
func KeyEnvName(cfg models.ProviderConfig) string {
	if cfg.APIKeyEnv != "" {
		return cfg.APIKeyEnv
	}
	return strings.ToUpper(cfg.Platform) + "_API_KEY"
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) Kind() models.TransportKind {
	return models.TransportAPI
}

// Probe reports whether the adapter holds a credential. API sessions do
// not expire mid-run; the only unusable state is a missing key.
func (c *Client) Probe(_ context.Context) (models.SessionState, string) {
	if c.apiKey == "" {
		return models.SessionLoggedOut, "API key not set (" + c.keyEnv + ")"
	}
	return models.SessionReady, ""
}

// Ask sends one completion request and returns the response text. The
// whole call, retries included, is bounded by req.Timeout; a full retry
// run counts as a single sample toward the circuit breaker.
func (c *Client) Ask(ctx context.Context, req provider.Request) (string, error) {
	if req.Timeout <= 0 {
		return "", errors.NewValidationError("timeout", "ask timeout must be positive")
	}
	if c.apiKey == "" {
		return "", errors.NewSessionNotReadyError(c.name, "missing API key")
	}
	if req.Model == "" {
		return "", errors.NewValidationError("model", "no model resolved for API request")
	}

	p := payload{
		Model:       req.Model,
		Prompt:      provider.TruncatePrompt(req.Prompt, c.logger),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	if req.ImagePath != "" {
		// Vision asks are single-turn: the image plus its prompt, with
		// the tighter vision token cap.
		b64, mime, err := encodeImage(req.ImagePath)
		if err != nil {
			return "", err
		}
		p.ImageB64 = b64
		p.ImageMime = mime
		p.MaxTokens = c.visionTokens
	} else if len(req.History) > 0 {
		p.History = trimHistory(req.History)
	}

	endpoint := c.wire.endpoint(c.base, req.Model, c.apiKey)
	body, err := json.Marshal(c.wire.body(p))
	if err != nil {
		return "", fmt.Errorf("failed to encode request payload: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"provider": c.name,
		"platform": c.platform,
		"model":    req.Model,
		"vision":   req.ImagePath != "",
	}).Debug("Dispatching API request")

	askCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	var answer string
	err = c.breaker.Execute(askCtx, func(ctx context.Context) error {
		return c.backoff.RetryWithPredicate(ctx, func() error {
			text, postErr := c.post(ctx, endpoint, body)
			if postErr != nil {
				return postErr
			}
			answer = text
			return nil
		}, errors.IsRetryable)
	})
	if err != nil {
		return "", err
	}

	c.logger.WithFields(logrus.Fields{
		"provider": c.name,
		"model":    req.Model,
		"length":   len(answer),
	}).Debug("API response received")

	return answer, nil
}

// post performs one HTTP attempt. Failures are classified so the retry
// predicate and the orchestrator can tell transient transport trouble
// from requests that can never succeed.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.NewTransportError(c.name, endpoint, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.wire.headers(c.apiKey) {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.NewTransportError(c.name, endpoint, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBytes))
	if err != nil {
		return "", errors.NewTransportError(c.name, endpoint, 0, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", errors.NewTransportError(c.name, endpoint, resp.StatusCode,
			fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	text, err := c.wire.text(respBody)
	if err != nil {
		return "", errors.NewTransportError(c.name, endpoint, 0,
			fmt.Errorf("failed to decode response: %w", err))
	}
	if text == "" {
		return "", errors.NewTransportError(c.name, endpoint, 0,
			fmt.Errorf("response contained no text"))
	}
	return text, nil
}

// encodeImage loads a materialized image and returns its base64 body and
// media type for embedding in a vision payload.
func encodeImage(path string) (string, string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is a media store temp file, not user input
	if err != nil {
		return "", "", errors.NewMediaError("read", err)
	}

	mime, ok := constants.ImageMimeTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mime = constants.ImageMimeTypes["."+constants.DefaultImageExtension]
	}

	return base64.StdEncoding.EncodeToString(data), mime, nil
}

// trimHistory bounds the context window to the most recent turns.
func trimHistory(turns []models.Turn) []models.Turn {
	if len(turns) <= constants.MaxHistoryMessages {
		return turns
	}
	return turns[len(turns)-constants.MaxHistoryMessages:]
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
