package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chatbridge/internal/constants"
	"chatbridge/internal/middleware"
	"chatbridge/internal/models"
	"chatbridge/internal/service"
	"chatbridge/internal/versioning"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const eventStreamWriteTimeout = 5 * time.Second

// Server exposes the local status and event-stream endpoints. It binds
// to the loopback interface by default and carries no authentication;
// exposing it beyond localhost is the operator's call.
type Server struct {
	router    *mux.Router
	logger    *logrus.Logger
	cfg       models.ServerConfig
	orch      *service.Orchestrator
	registry  *service.SessionRegistry
	hub       *service.EventHub
	startedAt time.Time
	server    *http.Server
}

func NewServer(cfg models.ServerConfig, orch *service.Orchestrator, registry *service.SessionRegistry, hub *service.EventHub, logger *logrus.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		logger:    logger,
		cfg:       cfg,
		orch:      orch,
		registry:  registry,
		hub:       hub,
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(versioning.VersionHeaderMiddleware)

	// JSON status endpoints
	api := s.router.NewRoute().Subrouter()
	api.Use(middleware.ObservabilityMiddleware(s.logger))
	if s.logger.IsLevelEnabled(logrus.DebugLevel) {
		api.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}
	api.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleSessions()).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats()).Methods(http.MethodGet)

	// The event stream gets the pass-through middleware so the
	// websocket upgrade can hijack the connection.
	stream := s.router.NewRoute().Subrouter()
	stream.Use(middleware.StreamObservabilityMiddleware(s.logger, "events"))
	stream.HandleFunc("/events", s.handleEvents()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.WithField("addr", s.server.Addr).Info("Starting status server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down status server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":               "ok",
			"service":              "chatbridge",
			"version":              versioning.CurrentVersion.String(),
			"uptime":               time.Since(s.startedAt).Round(time.Second).String(),
			"orchestrator_running": s.orch.IsRunning(),
		})
	}
}

func (s *Server) handleSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := s.registry.Snapshot()
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"sessions": sessions,
			"count":    len(sessions),
		})
	}
}

// handleEvents upgrades the request to a websocket and forwards every
// dispatch result until the client disconnects.
func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to accept event stream subscriber")
			return
		}
		defer conn.Close(websocket.StatusInternalError, "event stream aborted")

		events, cancel := s.hub.Subscribe()
		defer cancel()

		// Subscribers are write-only; CloseRead cancels the context as
		// soon as the client closes or sends anything.
		ctx := conn.CloseRead(r.Context())

		s.logger.WithField("client_ip", middleware.GetClientIP(r)).Info("Event stream subscriber connected")

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case result, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "event hub closed")
					return
				}
				writeCtx, cancelWrite := context.WithTimeout(ctx, eventStreamWriteTimeout)
				err := wsjson.Write(writeCtx, conn, result)
				cancelWrite()
				if err != nil {
					s.logger.WithError(err).Debug("Dropping event stream subscriber after failed write")
					return
				}
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
