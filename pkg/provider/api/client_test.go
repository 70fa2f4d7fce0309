package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cberrors "chatbridge/internal/errors"
	"chatbridge/internal/models"
	"chatbridge/pkg/circuitbreaker"
	"chatbridge/pkg/constants"
	"chatbridge/pkg/provider"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var fastRetry = models.RetryConfig{InitialBackoffMs: 1, MaxBackoffMs: 5, MaxAttempts: 3}

func newTestAdapter(t *testing.T, platform, base string, retryCfg models.RetryConfig) provider.Adapter {
	t.Helper()
	adapter, err := New("backend", models.ProviderConfig{
		Kind:            models.TransportAPI,
		Platform:        platform,
		APIBase:         base,
		MaxTokens:       700,
		VisionMaxTokens: 60,
		Temperature:     0.7,
	}, retryCfg, testLogger())
	require.NoError(t, err)
	return adapter
}

func writeTestImage(t *testing.T, name string) (string, []byte) {
	t.Helper()
	data := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, data
}

func TestNewRejectsUnknownPlatform(t *testing.T) {
	_, err := New("backend", models.ProviderConfig{
		Kind:     models.TransportAPI,
		Platform: "watson",
	}, fastRetry, testLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported API platform")
}

func TestKeyEnvName(t *testing.T) {
	tests := []struct {
		name     string
		cfg      models.ProviderConfig
		expected string
	}{
		{
			name:     "derived from platform",
			cfg:      models.ProviderConfig{Platform: "openai"},
			expected: "OPENAI_API_KEY",
		},
		{
			name:     "explicit override wins",
			cfg:      models.ProviderConfig{Platform: "openai", APIKeyEnv: "MY_SECRET"},
			expected: "MY_SECRET",
		},
		{
			name:     "claude platform",
			cfg:      models.ProviderConfig{Platform: "claude"},
			expected: "CLAUDE_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KeyEnvName(tt.cfg))
		})
	}
}

func TestAskSendsChatCompletionsRequest(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	var gotPath, gotAuth string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" Hello there "}}]}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "openai", server.URL, fastRetry)
	assert.Equal(t, "backend", adapter.Name())
	assert.Equal(t, models.TransportAPI, adapter.Kind())

	answer, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:  "Say hello",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", answer)

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)

	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, models.TurnRoleUser, req.Messages[0].Role)
	assert.JSONEq(t, `"Say hello"`, string(req.Messages[0].Content))
	assert.Equal(t, 700, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 0.0001)
}

func TestAskIncludesConversationHistory(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "openai", server.URL, fastRetry)

	_, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:  "And now?",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
		History: []models.Turn{
			{Role: models.TurnRoleUser, Content: "What time is it?"},
			{Role: models.TurnRoleAssistant, Content: "Half past nine."},
		},
	})
	require.NoError(t, err)

	var req struct {
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Len(t, req.Messages, 3)
	assert.Equal(t, models.TurnRoleUser, req.Messages[0].Role)
	assert.Equal(t, models.TurnRoleAssistant, req.Messages[1].Role)
	assert.Equal(t, models.TurnRoleUser, req.Messages[2].Role)
	assert.JSONEq(t, `"And now?"`, string(req.Messages[2].Content))
}

func TestAskVisionRequest(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	imgPath, imgData := writeTestImage(t, "photo.png")

	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"a cat"}}]}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "openai", server.URL, fastRetry)

	answer, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:    "Describe this",
		ImagePath: imgPath,
		Model:     "gpt-4o",
		Timeout:   5 * time.Second,
		History: []models.Turn{
			{Role: models.TurnRoleUser, Content: "earlier chatter"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "a cat", answer)

	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL *struct {
					URL    string `json:"url"`
					Detail string `json:"detail"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))

	// Vision asks are single-turn; history must not ride along.
	require.Len(t, req.Messages, 1)
	require.Len(t, req.Messages[0].Content, 2)

	assert.Equal(t, "text", req.Messages[0].Content[0].Type)
	assert.Equal(t, "Describe this", req.Messages[0].Content[0].Text)

	image := req.Messages[0].Content[1]
	assert.Equal(t, "image_url", image.Type)
	require.NotNil(t, image.ImageURL)
	assert.Equal(t, "low", image.ImageURL.Detail)
	require.True(t, strings.HasPrefix(image.ImageURL.URL, "data:image/png;base64,"))
	encoded := strings.TrimPrefix(image.ImageURL.URL, "data:image/png;base64,")
	assert.Equal(t, base64.StdEncoding.EncodeToString(imgData), encoded)

	assert.Equal(t, 60, req.MaxTokens)
}

func TestAskRetriesTransientFailures(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		switch attempts {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"finally"}}]}`))
		}
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "openai", server.URL, fastRetry)

	answer, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:  "hello",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "finally", answer)
	assert.Equal(t, 3, attempts)
}

func TestAskDoesNotRetryRejectedRequests(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"model not found"}}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "openai", server.URL, fastRetry)

	_, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:  "hello",
		Model:   "gpt-nope",
		Timeout: 5 * time.Second,
	})
	require.Error(t, err)
	assert.Equal(t, cberrors.ErrCodeMalformedInput, cberrors.GetCode(err))
	assert.False(t, cberrors.IsRetryable(err))
	assert.Equal(t, 1, attempts)
}

func TestAskHonorsTimeout(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "openai", server.URL, fastRetry)

	start := time.Now()
	_, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:  "hello",
		Model:   "gpt-4o-mini",
		Timeout: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAskWithoutKeyReportsSessionNotReady(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	adapter := newTestAdapter(t, "openai", "http://127.0.0.1:1", fastRetry)

	_, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:  "hello",
		Model:   "gpt-4o-mini",
		Timeout: time.Second,
	})
	require.Error(t, err)
	assert.True(t, cberrors.IsSkip(err))
}

func TestAskRejectsIncompleteRequests(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	adapter := newTestAdapter(t, "openai", "http://127.0.0.1:1", fastRetry)

	_, err := adapter.Ask(context.Background(), provider.Request{
		Prompt: "hello",
		Model:  "gpt-4o-mini",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout must be positive")

	_, err = adapter.Ask(context.Background(), provider.Request{
		Prompt:  "hello",
		Timeout: time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model resolved")
}

func TestAskOpensCircuitAfterRepeatedFailures(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	oneShot := models.RetryConfig{InitialBackoffMs: 1, MaxBackoffMs: 2, MaxAttempts: 1}
	adapter := newTestAdapter(t, "openai", server.URL, oneShot)

	req := provider.Request{Prompt: "hello", Model: "gpt-4o-mini", Timeout: time.Second}
	for i := 0; i < 5; i++ {
		_, err := adapter.Ask(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, 5, hits)

	_, err := adapter.Ask(context.Background(), req)
	require.Error(t, err)
	assert.True(t, circuitbreaker.IsCircuitBreakerError(err))
	assert.Equal(t, 5, hits, "open circuit must fail fast without reaching the server")
}

func TestAskAppliesEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_MAX_TOKENS", "123")
	t.Setenv("OPENAI_TEMPERATURE", "0.3")

	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "openai", server.URL, fastRetry)

	_, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:  "hello",
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	var req struct {
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, 123, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 0.0001)
}

func TestAskClaudeWire(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "claude-key")

	var gotPath, gotKey, gotVersion string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"From Claude"}]}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "claude", server.URL, fastRetry)

	answer, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:  "hello",
		Model:   "claude-3-5-haiku-latest",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "From Claude", answer)

	assert.Equal(t, "/messages", gotPath)
	assert.Equal(t, "claude-key", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)

	var req struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, "claude-3-5-haiku-latest", req.Model)
	assert.Equal(t, 700, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.JSONEq(t, `"hello"`, string(req.Messages[0].Content))
}

func TestAskClaudeVisionBlocks(t *testing.T) {
	t.Setenv("CLAUDE_API_KEY", "claude-key")
	imgPath, imgData := writeTestImage(t, "photo.jpg")

	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"a dog"}]}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "claude", server.URL, fastRetry)

	_, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:    "Describe this",
		ImagePath: imgPath,
		Model:     "claude-3-5-sonnet-latest",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	var req struct {
		MaxTokens int `json:"max_tokens"`
		Messages  []struct {
			Content []struct {
				Type   string `json:"type"`
				Text   string `json:"text"`
				Source *struct {
					Type      string `json:"type"`
					MediaType string `json:"media_type"`
					Data      string `json:"data"`
				} `json:"source"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, 60, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	require.Len(t, req.Messages[0].Content, 2)

	image := req.Messages[0].Content[0]
	assert.Equal(t, "image", image.Type)
	require.NotNil(t, image.Source)
	assert.Equal(t, "base64", image.Source.Type)
	assert.Equal(t, "image/jpeg", image.Source.MediaType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(imgData), image.Source.Data)

	assert.Equal(t, "text", req.Messages[0].Content[1].Type)
	assert.Equal(t, "Describe this", req.Messages[0].Content[1].Text)
}

func TestAskGeminiWire(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gem-key")

	var gotPath, gotKey, gotAuth string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"From "},{"text":"Gemini"}]}}]}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "gemini", server.URL, fastRetry)

	answer, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:  "hello",
		Model:   "gemini-1.5-flash",
		Timeout: 5 * time.Second,
		History: []models.Turn{
			{Role: models.TurnRoleUser, Content: "first"},
			{Role: models.TurnRoleAssistant, Content: "second"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "From Gemini", answer)

	assert.Equal(t, "/models/gemini-1.5-flash:generateContent", gotPath)
	assert.Equal(t, "gem-key", gotKey)
	assert.Empty(t, gotAuth)

	var req struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		GenerationConfig struct {
			MaxOutputTokens int     `json:"maxOutputTokens"`
			Temperature     float64 `json:"temperature"`
		} `json:"generationConfig"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Len(t, req.Contents, 3)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Equal(t, "model", req.Contents[1].Role)
	assert.Equal(t, "user", req.Contents[2].Role)
	assert.Equal(t, "hello", req.Contents[2].Parts[0].Text)
	assert.Equal(t, 700, req.GenerationConfig.MaxOutputTokens)
	assert.InDelta(t, 0.7, req.GenerationConfig.Temperature, 0.0001)
}

func TestAskGeminiVisionInlineData(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gem-key")
	imgPath, imgData := writeTestImage(t, "photo.png")

	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"a bird"}]}}]}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, "gemini", server.URL, fastRetry)

	_, err := adapter.Ask(context.Background(), provider.Request{
		Prompt:    "Describe this",
		ImagePath: imgPath,
		Model:     "gemini-1.5-flash",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	var req struct {
		Contents []struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"contents"`
		GenerationConfig struct {
			MaxOutputTokens int `json:"maxOutputTokens"`
		} `json:"generationConfig"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &req))
	require.Len(t, req.Contents, 1)
	require.Len(t, req.Contents[0].Parts, 2)
	assert.Equal(t, "Describe this", req.Contents[0].Parts[0].Text)

	inline := req.Contents[0].Parts[1].InlineData
	require.NotNil(t, inline)
	assert.Equal(t, "image/png", inline.MimeType)
	assert.Equal(t, base64.StdEncoding.EncodeToString(imgData), inline.Data)

	assert.Equal(t, 60, req.GenerationConfig.MaxOutputTokens)
}

func TestPerplexityAndGrokUseChatCompletionsShape(t *testing.T) {
	for _, platform := range []string{"perplexity", "grok"} {
		t.Run(platform, func(t *testing.T) {
			t.Setenv(strings.ToUpper(platform)+"_API_KEY", "pk")

			var gotPath, gotAuth string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
			}))
			defer server.Close()

			adapter := newTestAdapter(t, platform, server.URL, fastRetry)

			answer, err := adapter.Ask(context.Background(), provider.Request{
				Prompt:  "hello",
				Model:   "some-model",
				Timeout: 5 * time.Second,
			})
			require.NoError(t, err)
			assert.Equal(t, "ok", answer)
			assert.Equal(t, "/chat/completions", gotPath)
			assert.Equal(t, "Bearer pk", gotAuth)
		})
	}
}

func TestTrimHistoryKeepsMostRecentTurns(t *testing.T) {
	turns := make([]models.Turn, constants.MaxHistoryMessages+10)
	for i := range turns {
		turns[i] = models.Turn{Role: models.TurnRoleUser, Content: string(rune('a' + i%26))}
	}

	trimmed := trimHistory(turns)

	assert.Len(t, trimmed, constants.MaxHistoryMessages)
	assert.Equal(t, turns[len(turns)-1], trimmed[len(trimmed)-1])
	assert.Equal(t, turns[10], trimmed[0])
}
