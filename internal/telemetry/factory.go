package telemetry

import (
	"context"
	"fmt"

	"github.com/raaihank/journal-sentinel/internal/config"
	"go.uber.org/zap"
)

// New creates the recorder selected by cfg. Disabled telemetry still gets an
// in-memory recorder so the stats endpoint keeps working.
func New(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (Recorder, error) {
	if !cfg.Enabled {
		return NewMemoryRecorder(), nil
	}

	switch cfg.Backend {
	case "", "memory":
		logger.Info("In-memory telemetry initialized")
		return NewMemoryRecorder(), nil
	case "redis":
		return NewRedisRecorder(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown telemetry backend: %s", cfg.Backend)
	}
}
