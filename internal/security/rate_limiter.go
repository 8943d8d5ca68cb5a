package security

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/journal-sentinel/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter applies a token bucket per client IP
type RateLimiter struct {
	config  config.RateLimitConfig
	buckets map[string]*clientBucket
	mu      sync.RWMutex
	now     func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMin
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	return &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.Enabled {
		return true
	}

	bucket := r.getBucket(clientIP)
	now := r.now()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// Clients returns the number of tracked client buckets
func (r *RateLimiter) Clients() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets)
}

func (r *RateLimiter) getBucket(clientIP string) *clientBucket {
	r.mu.RLock()
	bucket, exists := r.buckets[clientIP]
	r.mu.RUnlock()

	if exists {
		return bucket
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists := r.buckets[clientIP]; exists {
		return bucket
	}

	perSecond := rate.Limit(float64(r.config.RequestsPerMin) / 60.0)
	bucket = &clientBucket{
		limiter:  rate.NewLimiter(perSecond, r.config.Burst),
		lastSeen: r.now(),
	}
	r.buckets[clientIP] = bucket
	return bucket
}

// CleanupIdle removes buckets of clients not seen within the idle TTL
func (r *RateLimiter) CleanupIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.config.IdleTTL)
	removed := 0
	for ip, bucket := range r.buckets {
		bucket.mu.Lock()
		idle := bucket.lastSeen.Before(cutoff)
		bucket.mu.Unlock()
		if idle {
			delete(r.buckets, ip)
			removed++
		}
	}
	return removed
}

// Run cleans up idle buckets periodically until ctx is cancelled
func (r *RateLimiter) Run(ctx context.Context) {
	interval := r.config.IdleTTL / 2
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CleanupIdle()
		}
	}
}
