package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/raaihank/journal-sentinel/internal/audit"
	"github.com/raaihank/journal-sentinel/internal/config"
	"github.com/raaihank/journal-sentinel/internal/logger"
	"github.com/raaihank/journal-sentinel/internal/privacy"
	"github.com/raaihank/journal-sentinel/internal/security"
	"github.com/raaihank/journal-sentinel/internal/telemetry"
	"github.com/raaihank/journal-sentinel/internal/web"
	"github.com/raaihank/journal-sentinel/internal/websocket"
	"go.uber.org/zap"
)

// Version is reported by /info
var Version = "0.1.0"

const statusInterval = 30 * time.Second

// Dependencies are the optional backends of the server. A nil Recorder is
// replaced by an in-memory one; a nil Audit disables the audit endpoint.
type Dependencies struct {
	Recorder telemetry.Recorder
	Audit    audit.Sink
}

// Server represents the main HTTP server
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	detector  *privacy.Detector
	limiter   *security.RateLimiter
	recorder  telemetry.Recorder
	audit     audit.Sink
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	transport *http.Transport
	startedAt time.Time
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Dependencies) (*Server, error) {
	// Create PII detector
	detector, err := privacy.New(cfg.Privacy, log.WithComponent("privacy"))
	if err != nil {
		return nil, fmt.Errorf("failed to create privacy detector: %w", err)
	}

	recorder := deps.Recorder
	if recorder == nil {
		recorder = telemetry.NewMemoryRecorder()
	}

	server := &Server{
		config:    cfg,
		logger:    log.WithComponent("proxy"),
		detector:  detector,
		limiter:   security.NewRateLimiter(cfg.RateLimit),
		recorder:  recorder,
		audit:     deps.Audit,
		router:    mux.NewRouter(),
		wsHub:     websocket.NewHub(cfg.WebSocket, log.Logger),
		transport: newUpstreamTransport(cfg.Upstream),
		startedAt: time.Now(),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// newUpstreamTransport returns the transport shared by all provider proxies
func newUpstreamTransport(cfg config.UpstreamConfig) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	// Masking API used by the desktop app
	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.requestMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/mask", s.handleMask).Methods("POST")
	api.HandleFunc("/mask/stats", s.handleMaskWithStats).Methods("POST")
	api.HandleFunc("/detect", s.handleDetect).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/audit", s.handleAudit).Methods("GET")

	// Provider proxies mask request bodies before forwarding
	for _, p := range []struct {
		name     string
		upstream string
	}{
		{"openai", s.config.Upstream.OpenAI},
		{"anthropic", s.config.Upstream.Anthropic},
		{"ollama", s.config.Upstream.Ollama},
	} {
		if p.upstream == "" {
			continue
		}
		sub := s.router.PathPrefix("/" + p.name).Subrouter()
		sub.Use(s.requestMiddleware)
		sub.Use(s.rateLimitMiddleware)
		sub.Use(s.privacyMiddleware(p.name))
		sub.PathPrefix("/").Handler(s.providerHandler(p.name, p.upstream))
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the background workers and serves HTTP until Stop is called
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting journal-sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.String("upstream_openai", s.config.Upstream.OpenAI),
		zap.String("upstream_anthropic", s.config.Upstream.Anthropic),
		zap.String("upstream_ollama", s.config.Upstream.Ollama),
	)

	go s.wsHub.Run(ctx)
	go s.limiter.Run(ctx)
	go s.statusLoop(ctx)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping journal-sentinel server")
	defer s.transport.CloseIdleConnections()
	return s.server.Shutdown(ctx)
}

// Reload applies a new privacy configuration without restarting
func (s *Server) Reload(cfg *config.Config) error {
	if err := s.detector.Reload(cfg.Privacy); err != nil {
		return err
	}
	s.logger.Info("Privacy configuration reloaded",
		zap.Bool("enabled", cfg.Privacy.Enabled),
		zap.Int("custom_rules", len(cfg.Privacy.CustomRules)))
	return nil
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

// statusLoop periodically pushes counters to dashboard clients
func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastStatus(ctx)
		}
	}
}

func (s *Server) broadcastStatus(ctx context.Context) {
	snap, err := s.recorder.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("Failed to read telemetry", zap.Error(err))
		return
	}
	s.wsHub.BroadcastEvent(websocket.Event{
		Type: websocket.EventTypeSystemStatus,
		Data: websocket.SystemStatusEvent{
			Status:           "healthy",
			Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
			TotalRequests:    snap.Requests,
			PIIRequests:      snap.PIIRequests,
			MaskedSpans:      snap.MaskedSpans,
			ConnectedClients: s.wsHub.ClientCount(),
		},
	})
}
