package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raaihank/journal-sentinel/internal/audit"
	"github.com/raaihank/journal-sentinel/internal/privacy"
	"github.com/raaihank/journal-sentinel/internal/telemetry"
	"github.com/raaihank/journal-sentinel/internal/websocket"
	"go.uber.org/zap"
)

type maskRequest struct {
	Text    *string              `json:"text"`
	Options *privacy.MaskOptions `json:"options,omitempty"`
}

type maskResponse struct {
	Masked string                `json:"masked"`
	Stats  *privacy.MaskingStats `json:"stats,omitempty"`
}

type detectResponse struct {
	ContainsPII bool `json:"containsPII"`
}

type statsResponse struct {
	Uptime    string              `json:"uptime"`
	Telemetry *telemetry.Snapshot `json:"telemetry"`
	WebSocket websocket.HubStats  `json:"websocket"`
}

type auditResponse struct {
	Events  []*audit.Event `json:"events"`
	Summary *audit.Summary `json:"summary"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	opts := s.detector.Options()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":               "journal-sentinel",
		"version":            Version,
		"privacy_enabled":    s.detector.Enabled(),
		"preserve_structure": opts.PreserveStructure,
		"name_masking":       !opts.DisableNameMasking,
		"path_masking":       !opts.DisablePathMasking,
		"categories":         privacy.Categories,
		"telemetry_backend":  s.config.Telemetry.Backend,
		"audit_enabled":      s.audit != nil,
	})
}

func (s *Server) handleMask(w http.ResponseWriter, r *http.Request) {
	text, opts, ok := s.decodeMaskRequest(w, r)
	if !ok {
		return
	}
	start := time.Now()
	result := s.detector.ProcessTextWithOptions(text, opts)
	s.recordMasking(r.Context(), "api", "", result, time.Since(start))

	writeJSON(w, http.StatusOK, maskResponse{Masked: result.MaskedText})
}

func (s *Server) handleMaskWithStats(w http.ResponseWriter, r *http.Request) {
	text, opts, ok := s.decodeMaskRequest(w, r)
	if !ok {
		return
	}
	start := time.Now()
	result := s.detector.ProcessTextWithOptions(text, opts)
	s.recordMasking(r.Context(), "api", "", result, time.Since(start))

	writeJSON(w, http.StatusOK, maskResponse{Masked: result.MaskedText, Stats: &result.Stats})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	text, _, ok := s.decodeMaskRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, detectResponse{ContainsPII: s.detector.Contains(text)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.recorder.Snapshot(r.Context())
	if err != nil {
		s.logger.Error("Failed to read telemetry", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "telemetry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Telemetry: snap,
		WebSocket: s.wsHub.GetStats(),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit log is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := s.audit.Recent(r.Context(), audit.ClampLimit(limit))
	if err != nil {
		s.logger.Error("Failed to list audit events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}
	summary, err := s.audit.Summary(r.Context())
	if err != nil {
		s.logger.Error("Failed to summarize audit events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read audit log")
		return
	}

	writeJSON(w, http.StatusOK, auditResponse{Events: events, Summary: summary})
}

// decodeMaskRequest reads {text, options}. Missing options fall back to the
// configured defaults.
func (s *Server) decodeMaskRequest(w http.ResponseWriter, r *http.Request) (string, privacy.MaskOptions, bool) {
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	var req maskRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON body")
		}
		return "", privacy.MaskOptions{}, false
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, "text is required")
		return "", privacy.MaskOptions{}, false
	}

	opts := s.detector.Options()
	if req.Options != nil {
		opts = *req.Options
	}
	return *req.Text, opts, true
}

// providerHandler proxies requests under /<provider>/ to the upstream. The
// reverse proxy is built once and shares the server's transport.
func (s *Server) providerHandler(provider, upstream string) http.HandlerFunc {
	target, err := url.Parse(upstream)
	if err != nil {
		s.logger.Error("Failed to parse upstream URL", zap.String("provider", provider), zap.Error(err))
		return func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusInternalServerError, "invalid upstream configuration")
		}
	}

	proxy := s.newReverseProxy(target, provider)

	return func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = strings.TrimPrefix(r.URL.Path, "/"+provider)
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
		r.URL.RawPath = ""

		start := time.Now()
		proxy.ServeHTTP(w, r)

		s.logger.WithRequestID(getRequestID(r.Context())).Info("Request proxied",
			zap.String("provider", provider),
			zap.Duration("upstream_duration", time.Since(start)),
		)
	}
}

// newReverseProxy builds the proxy for one provider
func (s *Server) newReverseProxy(target *url.URL, provider string) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host

		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", "journal-sentinel/"+Version)
		}

		s.logger.WithRequestID(getRequestID(req.Context())).Debug("Proxying request",
			zap.String("provider", provider),
			zap.String("path", req.URL.Path),
			zap.String("method", req.Method),
		)
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Proxy error",
			zap.String("provider", provider),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, fmt.Sprintf("upstream %s unavailable", provider))
	}

	proxy.Transport = s.transport
	return proxy
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
