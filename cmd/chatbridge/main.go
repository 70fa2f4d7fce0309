package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbridge/internal/cache"
	"chatbridge/internal/config"
	"chatbridge/internal/constants"
	"chatbridge/internal/features"
	"chatbridge/internal/history"
	"chatbridge/internal/models"
	"chatbridge/internal/retry"
	"chatbridge/internal/service"
	"chatbridge/internal/tracing"
	"chatbridge/internal/versioning"
	"chatbridge/pkg/browser"
	"chatbridge/pkg/chat"
	"chatbridge/pkg/media"
	"chatbridge/pkg/provider"
	"chatbridge/pkg/provider/api"
	"chatbridge/pkg/provider/ui"

	"github.com/sirupsen/logrus"
)

var (
	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes prompt and response text)")
	configPath = flag.String("config", defaultConfigPath(), "Path to configuration file")
	logLevel   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	logFile    = flag.String("log-file", "", "Append logs to this file instead of stderr")
	version    = flag.Bool("version", false, "Show version information")
)

// defaultConfigPath lets CHATBRIDGE_CONFIG_PATH supply the config file
// location when the --config flag is not given.
func defaultConfigPath() string {
	if path := os.Getenv("CHATBRIDGE_CONFIG_PATH"); path != "" {
		return path
	}
	return "config.json"
}

func main() {
	flag.Parse()

	if *version {
		info := versioning.Info()
		fmt.Printf("chatbridge %s\nBuild Time: %s\nGit Commit: %s\nGo Version: %s\n", info.Version, info.BuildTime, info.Commit, info.GoVersion)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	info := versioning.Info()
	logger.WithFields(logrus.Fields{
		"version": info.Version,
		"build":   info.BuildTime,
		"commit":  info.Commit,
	}).Info("Starting chatbridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - prompts and responses will be logged")
	} else {
		levelName := cfg.LogLevel
		if *logLevel != "" {
			levelName = *logLevel
		}
		level, err := logrus.ParseLevel(levelName)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", levelName)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			if level > logrus.InfoLevel {
				level = logrus.InfoLevel
			}
			logger.SetLevel(level)
		}
	}

	features.Initialize()
	if err := features.GetGlobalManager().LoadFromConfig(features.FlagsConfig{Flags: cfg.Features}); err != nil {
		logger.Warnf("Failed to apply feature flag configuration: %v", err)
	}
	features.GetGlobalManager().LoadFromEnvironment()

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    "chatbridge",
		ServiceVersion: info.Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Open the history store with exponential backoff retry
	var historyStore *history.Store
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var openErr error
		historyStore, openErr = history.New(cfg.HistoryDB)
		if openErr != nil {
			logger.Warnf("Failed to open history store: %v", openErr)
		}
		return openErr
	})
	if err != nil {
		return fmt.Errorf("failed to open history store after retries: %w", err)
	}
	defer historyStore.Close()

	cacheStore := cache.NewStore(cfg.CacheFile, logger)
	cacheStore.Load()

	mediaStore, err := media.NewStore(cfg.MediaDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media store: %w", err)
	}

	session := browser.NewSession(browser.Config{
		ProfileDir:    cfg.Browser.ProfileDir,
		Headless:      cfg.Browser.Headless,
		UserAgent:     cfg.Browser.UserAgent,
		NavTimeoutSec: cfg.Browser.NavTimeoutSec,
	}, logger)
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warnf("Failed to close browser session: %v", err)
		}
	}()

	// The chat surface must be the first page so it claims the browser's
	// initial tab.
	chatPage, err := session.OpenPage(ctx, "chat", cfg.Chat.URL)
	if err != nil {
		return fmt.Errorf("failed to open chat surface: %w", err)
	}

	chatClient := chat.NewClient(cfg.Chat, chatPage, mediaStore, logger)

	if !chatClient.LoggedIn(ctx) {
		logger.Warn("Chat surface is not logged in. Complete the login in the browser window; polling starts once the conversation list renders.")
	}

	adapters := make(map[string]provider.Adapter)
	probes := make(map[string]service.SessionProbe)
	for id, providerCfg := range cfg.Providers {
		switch providerCfg.Kind {
		case models.TransportUI:
			page, err := session.OpenPage(ctx, id, providerCfg.URL)
			if err != nil {
				return fmt.Errorf("failed to open page for provider %q: %w", id, err)
			}
			adapter, err := ui.New(id, providerCfg, page, cfg.Delays, logger)
			if err != nil {
				return fmt.Errorf("failed to create UI adapter %q: %w", id, err)
			}
			adapters[id] = adapter
			probes[id] = adapter
		case models.TransportAPI:
			client, err := api.New(id, providerCfg, cfg.Retry, logger)
			if err != nil {
				return fmt.Errorf("failed to create API client %q: %w", id, err)
			}
			adapters[id] = client
			probes[id] = client
		}
	}

	router, err := service.NewChatRouter(cfg.Conversations, adapters)
	if err != nil {
		return fmt.Errorf("failed to build conversation router: %w", err)
	}

	registry := service.NewSessionRegistry(probes, logger, time.Duration(constants.DefaultSessionHealthCheckSec)*time.Second)
	registry.Start(ctx)
	defer registry.Stop()

	hub := service.NewEventHub(logger)
	defer hub.Close()

	orchestrator := service.NewOrchestrator(chatClient, router, registry, cacheStore, historyStore, mediaStore, hub, cfg.Delays, logger)

	ctxWithVerbose := context.WithValue(ctx, service.VerboseContextKey, *verbose)
	if err := orchestrator.Start(ctxWithVerbose); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer orchestrator.Stop()

	scheduler := service.NewScheduler(mediaStore, historyStore, cacheStore, cfg.Retention, logger)
	go scheduler.Start(ctx)

	var server *Server
	serverErrCh := make(chan error, 1)
	if cfg.Server.Enabled {
		server = NewServer(cfg.Server, orchestrator, registry, hub, logger)
		go func() {
			if err := server.Start(); err != nil {
				serverErrCh <- fmt.Errorf("server error: %w", err)
			}
		}()
	} else {
		logger.Info("Status server is disabled")
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
	}

	// Stop the loop before the final flush so no dispatch writes after it.
	orchestrator.Stop()

	if err := cacheStore.Flush(); err != nil {
		logger.Warnf("Failed to flush processed-message cache: %v", err)
	}

	logger.Info("Shutdown completed")
	return nil
}
