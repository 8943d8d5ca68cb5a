package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/raaihank/journal-sentinel/internal/config"
	"go.uber.org/zap"
)

const maxPingRetries = 5

// RedisRecorder keeps counters in a Redis hash so several sentinel
// processes share one view.
type RedisRecorder struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisRecorder connects to Redis, retrying the initial ping with
// exponential backoff.
func NewRedisRecorder(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*RedisRecorder, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	r := &RedisRecorder{
		client:  redis.NewClient(opts),
		key:     cfg.KeyPrefix + ":counters",
		timeout: timeout,
		logger:  logger,
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxPingRetries), ctx)
	notify := func(err error, d time.Duration) {
		logger.Warn("Redis not ready, retrying", zap.Error(err), zap.Duration("backoff", d))
	}
	if err := backoff.RetryNotify(func() error { return r.ping(ctx) }, b, notify); err != nil {
		_ = r.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis telemetry initialized",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.String("key", r.key),
		zap.Int("pool_size", opts.PoolSize))

	return r, nil
}

func (r *RedisRecorder) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Record increments the shared counters in a single transaction
func (r *RedisRecorder) Record(ctx context.Context, sample Sample) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, r.key, fieldRequests, 1)
		if sample.PIIDetected {
			pipe.HIncrBy(ctx, r.key, fieldPIIRequests, 1)
		}
		pipe.HIncrBy(ctx, r.key, fieldMaskedSpans, int64(sample.MaskedSpans))
		pipe.HIncrBy(ctx, r.key, fieldOriginalChars, int64(sample.OriginalLength))
		pipe.HIncrBy(ctx, r.key, fieldMaskedChars, int64(sample.MaskedLength))
		for category, n := range sample.Categories {
			pipe.HIncrBy(ctx, r.key, categoryPrefix+category, int64(n))
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to record telemetry", zap.Error(err))
		return fmt.Errorf("failed to record telemetry: %w", err)
	}
	return nil
}

// Snapshot reads the shared counters
func (r *RedisRecorder) Snapshot(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read telemetry: %w", err)
	}
	return parseCounters(fields), nil
}

// Close closes the Redis connection
func (r *RedisRecorder) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func parseCounters(fields map[string]string) *Snapshot {
	snap := &Snapshot{Backend: "redis", Categories: make(map[string]int64)}
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch field {
		case fieldRequests:
			snap.Requests = n
		case fieldPIIRequests:
			snap.PIIRequests = n
		case fieldMaskedSpans:
			snap.MaskedSpans = n
		case fieldOriginalChars:
			snap.OriginalChars = n
		case fieldMaskedChars:
			snap.MaskedChars = n
		default:
			if category, ok := strings.CutPrefix(field, categoryPrefix); ok {
				snap.Categories[category] = n
			}
		}
	}
	return snap
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
