package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/journal-sentinel/internal/audit"
	"github.com/raaihank/journal-sentinel/internal/privacy"
	"github.com/raaihank/journal-sentinel/internal/telemetry"
	"github.com/raaihank/journal-sentinel/internal/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// requestMiddleware assigns a request ID and logs requests and responses
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
		w.Header().Set("X-Request-ID", requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		logger := s.logger.WithRequestID(requestID)

		logger.Info("HTTP request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
		)

		next.ServeHTTP(rw, r)

		logger.Info("HTTP request completed",
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int("response_size", rw.size),
		)
	})
}

// rateLimitMiddleware rejects clients that exceed their request budget
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r, s.config.RateLimit.TrustForwardedFor)
		if !s.limiter.Allow(clientIP) {
			s.logger.WithRequestID(getRequestID(r.Context())).Warn("Rate limit exceeded",
				zap.String("client_ip", clientIP),
			)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// privacyMiddleware masks provider-bound request bodies and scrubs headers
// before the request leaves the machine.
func (s *Server) privacyMiddleware(provider string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.detector.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			requestID := getRequestID(r.Context())
			logger := s.logger.WithRequestID(requestID)

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes))
			r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				logger.Error("Failed to read request body", zap.Error(err))
				writeError(w, http.StatusBadRequest, "failed to read request")
				return
			}

			r.Header = http.Header(s.detector.ProcessHeaders(r.Header, true))

			if len(bytes.TrimSpace(body)) == 0 {
				r.Body = io.NopCloser(bytes.NewReader(body))
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			masked, result := s.maskBody(body, r.Header.Get("Content-Type"))
			elapsed := time.Since(start)

			if model := gjson.GetBytes(body, "model"); model.Exists() {
				logger.Debug("Provider request", zap.String("provider", provider), zap.String("model", model.String()))
			}
			s.recordMasking(r.Context(), "proxy", provider, result, elapsed)

			r.Body = io.NopCloser(bytes.NewReader(masked))
			r.ContentLength = int64(len(masked))
			r.Header.Del("Content-Length")

			next.ServeHTTP(w, r)
		})
	}
}

// maskBody masks every string value of a JSON body, keeping keys and
// structure intact. Non-JSON bodies are masked as plain text.
func (s *Server) maskBody(body []byte, contentType string) ([]byte, privacy.ProcessResult) {
	isJSON := strings.Contains(contentType, "json") || gjson.ValidBytes(body)
	if isJSON {
		if masked, result, err := s.maskJSON(body); err == nil {
			return masked, result
		}
	}

	result := s.detector.ProcessText(string(body))
	return []byte(result.MaskedText), result
}

func (s *Server) maskJSON(body []byte) ([]byte, privacy.ProcessResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, privacy.ProcessResult{}, err
	}
	if dec.More() {
		return nil, privacy.ProcessResult{}, errors.New("trailing data after JSON body")
	}

	agg := &bodyResult{counts: make(map[string]int)}
	doc = s.maskValue(doc, agg)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, privacy.ProcessResult{}, err
	}

	return bytes.TrimRight(buf.Bytes(), "\n"), agg.result(), nil
}

func (s *Server) maskValue(v interface{}, agg *bodyResult) interface{} {
	switch val := v.(type) {
	case string:
		result := s.detector.ProcessText(val)
		agg.add(result)
		return result.MaskedText
	case map[string]interface{}:
		for k, child := range val {
			val[k] = s.maskValue(child, agg)
		}
		return val
	case []interface{}:
		for i, child := range val {
			val[i] = s.maskValue(child, agg)
		}
		return val
	default:
		return v
	}
}

// bodyResult folds the results of every string in a body into one
type bodyResult struct {
	order  []string
	counts map[string]int
	masked map[string]string
	stats  privacy.MaskingStats
}

func (b *bodyResult) add(r privacy.ProcessResult) {
	for _, f := range r.Findings {
		if _, ok := b.counts[f.EntityType]; !ok {
			b.order = append(b.order, f.EntityType)
			if b.masked == nil {
				b.masked = make(map[string]string)
			}
			b.masked[f.EntityType] = f.Masked
		}
		b.counts[f.EntityType] += f.Count
	}
	b.stats.OriginalLength += r.Stats.OriginalLength
	b.stats.MaskedLength += r.Stats.MaskedLength
	b.stats.MaskedCount += r.Stats.MaskedCount
	b.stats.PIIDetected = b.stats.PIIDetected || r.Stats.PIIDetected
}

func (b *bodyResult) result() privacy.ProcessResult {
	findings := make([]privacy.Finding, 0, len(b.order))
	for _, entity := range b.order {
		findings = append(findings, privacy.Finding{
			EntityType: entity,
			Masked:     b.masked[entity],
			Count:      b.counts[entity],
		})
	}
	return privacy.ProcessResult{Findings: findings, Stats: b.stats}
}

// recordMasking publishes the outcome of a masking operation. Only counts
// leave this function, never text.
func (s *Server) recordMasking(ctx context.Context, source, provider string, result privacy.ProcessResult, elapsed time.Duration) {
	requestID := getRequestID(ctx)
	logger := s.logger.WithRequestID(requestID)

	if err := s.recorder.Record(ctx, telemetry.SampleFrom(source, provider, result)); err != nil {
		logger.Warn("Failed to record telemetry", zap.Error(err))
	}

	if s.audit != nil {
		if err := s.audit.Insert(ctx, audit.NewEvent(requestID, source, provider, result)); err != nil {
			logger.Warn("Failed to write audit event", zap.Error(err))
		}
	}

	s.wsHub.BroadcastMasking(websocket.MaskingEvent{
		RequestID:    requestID,
		Source:       source,
		Provider:     provider,
		Findings:     result.Findings,
		Stats:        result.Stats,
		ProcessingMS: float64(elapsed.Microseconds()) / 1000,
	})

	if result.Stats.PIIDetected {
		logger.Info("PII masked",
			append(result.Stats.Fields(),
				zap.String("source", source),
				zap.String("provider", provider),
				zap.Int("categories", len(result.Findings)),
			)...,
		)
	}
}

// getClientIP extracts the client IP from the request. Forwarding headers
// are client controlled and are read only when trustForwarded is set.
func getClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Flush lets streamed provider responses through
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}
