package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chatbridge/internal/cache"
	"chatbridge/internal/features"
	"chatbridge/internal/history"
	"chatbridge/internal/models"
	"chatbridge/internal/service"
	"chatbridge/pkg/media"
	"chatbridge/pkg/provider"
	"chatbridge/pkg/provider/api"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// TestEnvironment wires the full dispatch pipeline around scripted
// endpoints: a scripted messaging surface and provider stubs on the
// outside, the real cache, history, media and event plumbing on the
// inside. Tests post messages onto the surface, start the loop, and
// observe replies, durable marks and the event feed.
type TestEnvironment struct {
	t      *testing.T
	name   string
	logger *logrus.Logger

	surface  *surfaceStub
	adapters map[string]provider.Adapter

	cacheFile string
	cache     *cache.Store
	historyDB string
	history   *history.Store
	mediaDir  string
	media     media.Store

	registry *service.SessionRegistry
	hub      *service.EventHub
	events   <-chan models.DispatchResult
	orch     *service.Orchestrator

	fixtures *TestFixtures
	samples  *MediaSamples
	cleanup  []func()

	httpServer      *httptest.Server
	mockAPILock     sync.Mutex
	mockAPIRequests int
	mockAPIFailures int
	mockAPIAnswer   string
	mockAPIBodies   [][]byte
	mockAPIObserver func(attempt int)
}

// TestEnvironmentOptions overrides the state a fresh environment would
// otherwise create, letting a test resume from another environment's
// files the way a restarted process would.
type TestEnvironmentOptions struct {
	CacheFile string
	HistoryDB string
}

// NewTestEnvironment creates a complete test environment with fresh
// state directories.
func NewTestEnvironment(t *testing.T, name string) *TestEnvironment {
	return NewTestEnvironmentWithOptions(t, name, nil)
}

// NewTestEnvironmentWithOptions creates a test environment, reusing any
// state files named in opts.
func NewTestEnvironmentWithOptions(t *testing.T, name string, opts *TestEnvironmentOptions) *TestEnvironment {
	features.Initialize()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)

	env := &TestEnvironment{
		t:        t,
		name:     fmt.Sprintf("%s_%d", name, time.Now().UnixNano()),
		logger:   logger,
		surface:  newSurfaceStub(),
		adapters: make(map[string]provider.Adapter),
		fixtures: NewTestFixtures(),
		samples:  NewMediaSamples(),
		cleanup:  make([]func(), 0),
	}

	env.setupCache(opts)
	env.setupHistory(opts)
	env.setupMediaDirectory()
	env.setupEventFeed()

	return env
}

func (env *TestEnvironment) setupCache(opts *TestEnvironmentOptions) {
	env.cacheFile = filepath.Join(env.t.TempDir(), "processed.json")
	if opts != nil && opts.CacheFile != "" {
		env.cacheFile = opts.CacheFile
	}

	env.cache = cache.NewStore(env.cacheFile, env.logger)
	env.cache.Load()
}

func (env *TestEnvironment) setupHistory(opts *TestEnvironmentOptions) {
	env.historyDB = filepath.Join(env.t.TempDir(), "history.db")
	if opts != nil && opts.HistoryDB != "" {
		env.historyDB = opts.HistoryDB
	}

	store, err := history.New(env.historyDB)
	require.NoError(env.t, err)
	env.history = store

	env.cleanup = append(env.cleanup, func() {
		_ = store.Close()
	})
}

func (env *TestEnvironment) setupMediaDirectory() {
	env.mediaDir = env.t.TempDir()

	store, err := media.NewStore(env.mediaDir, env.logger)
	require.NoError(env.t, err)
	env.media = store
}

func (env *TestEnvironment) setupEventFeed() {
	env.hub = service.NewEventHub(env.logger)
	events, cancelSub := env.hub.Subscribe()
	env.events = events

	env.cleanup = append(env.cleanup, func() {
		cancelSub()
		env.hub.Close()
	})
}

// AddUIProvider registers a scripted browser-tab provider under the
// given id and returns the stub for further scripting.
func (env *TestEnvironment) AddUIProvider(id string, renders ...string) *uiProviderStub {
	stub := newUIProviderStub(id, renders...)
	env.adapters[id] = stub
	return stub
}

// AddAPIProvider builds a real HTTP API adapter for the given provider
// entry. When the entry names no api_base the adapter is pointed at the
// environment's provider API server; a placeholder credential is set
// unless the test already exported one.
func (env *TestEnvironment) AddAPIProvider(id string, cfg models.ProviderConfig) *api.Client {
	env.t.Helper()

	if cfg.APIBase == "" && env.httpServer != nil {
		cfg.APIBase = env.httpServer.URL
	}
	if os.Getenv(api.KeyEnvName(cfg)) == "" {
		env.t.Setenv(api.KeyEnvName(cfg), "integration-test-key")
	}

	client, err := api.New(id, cfg, fastRetryConfig(), env.logger)
	require.NoError(env.t, err)
	env.adapters[id] = client
	return client
}

// Start wires the router and orchestrator over the registered providers
// and runs the dispatch loop at a one second cadence.
func (env *TestEnvironment) Start(conversations ...models.ConversationMapping) {
	env.t.Helper()

	router, err := service.NewChatRouter(conversations, env.adapters)
	require.NoError(env.t, err)

	probes := make(map[string]service.SessionProbe, len(env.adapters))
	for id, adapter := range env.adapters {
		if probe, ok := adapter.(service.SessionProbe); ok {
			probes[id] = probe
		}
	}
	env.registry = service.NewSessionRegistry(probes, env.logger, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	env.registry.Start(ctx)

	env.orch = service.NewOrchestrator(env.surface, router, env.registry, env.cache,
		env.history, env.media, env.hub, models.DelayConfig{LoopIntervalSec: 1}, env.logger)
	require.NoError(env.t, env.orch.Start(ctx))

	env.cleanup = append(env.cleanup, func() {
		env.orch.Stop()
		env.registry.Stop()
		cancel()
	})
}

// Cleanup tears down all environment resources. Safe to call more than
// once; a second call is a no-op.
func (env *TestEnvironment) Cleanup() {
	for i := len(env.cleanup) - 1; i >= 0; i-- {
		env.cleanup[i]()
	}
	env.cleanup = env.cleanup[:0]
}

// CreateSampleImage materializes a small PNG through the media store,
// the way the surface exports an inbound image attachment.
func (env *TestEnvironment) CreateSampleImage() string {
	env.t.Helper()

	path, err := env.media.SaveImage(env.samples.SmallImagePNG(), "png")
	require.NoError(env.t, err)
	return path
}

// Provider API mock

// StartProviderAPIServer starts a mock completion endpoint for API
// providers. Scripted failures are served before the canned answer so
// retry behavior can be observed from the outside.
func (env *TestEnvironment) StartProviderAPIServer(answer string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		env.mockAPILock.Lock()
		env.mockAPIRequests++
		attempt := env.mockAPIRequests
		env.mockAPIBodies = append(env.mockAPIBodies, body)
		observer := env.mockAPIObserver
		failing := env.mockAPIFailures > 0
		if failing {
			env.mockAPIFailures--
		}
		current := env.mockAPIAnswer
		env.mockAPILock.Unlock()

		if observer != nil {
			observer(attempt)
		}

		w.Header().Set("Content-Type", "application/json")
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error": {"message": "temporary upstream failure"}}`))
			return
		}

		response := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": current}},
			},
		}
		_ = json.NewEncoder(w).Encode(response)
	})

	env.mockAPIAnswer = answer
	env.httpServer = httptest.NewServer(mux)

	env.cleanup = append(env.cleanup, func() {
		env.httpServer.Close()
	})
}

// SetProviderAPIFailures scripts how many upcoming requests fail with a
// retryable status before the canned answer is served.
func (env *TestEnvironment) SetProviderAPIFailures(failures int) {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()
	env.mockAPIFailures = failures
}

// SetProviderAPIAnswer changes the canned answer for later requests.
func (env *TestEnvironment) SetProviderAPIAnswer(answer string) {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()
	env.mockAPIAnswer = answer
}

// SetProviderAPIObserver registers a callback invoked with the attempt
// number of every request the mock serves.
func (env *TestEnvironment) SetProviderAPIObserver(observer func(attempt int)) {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()
	env.mockAPIObserver = observer
}

// CountProviderAPIRequests returns how many requests the mock has served.
func (env *TestEnvironment) CountProviderAPIRequests() int {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()
	return env.mockAPIRequests
}

// ProviderAPIRequestBodies returns the captured request bodies in
// arrival order.
func (env *TestEnvironment) ProviderAPIRequestBodies() [][]byte {
	env.mockAPILock.Lock()
	defer env.mockAPILock.Unlock()
	out := make([][]byte, len(env.mockAPIBodies))
	copy(out, env.mockAPIBodies)
	return out
}

// Event feed helpers

// WaitForResult blocks until the next dispatch result reaches the event
// feed.
func (env *TestEnvironment) WaitForResult(timeout time.Duration) models.DispatchResult {
	env.t.Helper()

	select {
	case result, ok := <-env.events:
		if !ok {
			env.t.Fatal("event feed closed while waiting for a dispatch result")
		}
		return result
	case <-time.After(timeout):
		env.t.Fatalf("no dispatch result within %v", timeout)
	}
	return models.DispatchResult{}
}

// WaitForDelivery consumes results until a delivered one arrives.
// Skipped results along the way are expected while a session recovers;
// a failed result ends the test.
func (env *TestEnvironment) WaitForDelivery(timeout time.Duration) models.DispatchResult {
	env.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			env.t.Fatalf("no delivered dispatch within %v", timeout)
		}

		result := env.WaitForResult(remaining)
		switch result.Status {
		case models.DispatchDelivered:
			return result
		case models.DispatchFailed:
			env.t.Fatalf("dispatch failed while waiting for delivery: %s", result.FailureReason)
		}
	}
}

// RequireNoResult asserts the event feed stays quiet for the window.
func (env *TestEnvironment) RequireNoResult(window time.Duration) {
	env.t.Helper()

	select {
	case result := <-env.events:
		env.t.Fatalf("unexpected dispatch result: %+v", result)
	case <-time.After(window):
	}
}
