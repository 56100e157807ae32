package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/casefile-ai/chatrelay/internal/config"
)

// RateLimiter applies per-client token-bucket limiting to chat turns.
type RateLimiter struct {
	config  config.RateLimitConfig
	buckets map[string]*tokenBucket
	mu      sync.Mutex
	logger  zerolog.Logger
}

type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a rate limiter from config.
func NewRateLimiter(cfg config.RateLimitConfig, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*tokenBucket),
		logger:  logger,
	}
}

// Middleware limits POST /chat requests per client; everything else passes
// through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled || r.URL.Path != "/chat" {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		if !rl.allow(key) {
			rl.logger.Warn().Str("client", key).Msg("rate limit exceeded")
			http.Error(w, `{"error":{"message":"rate limit exceeded","code":"429"}}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string) bool {
	if rl.config.RequestsPerMinute <= 0 {
		return true
	}

	rl.mu.Lock()
	bucket, ok := rl.buckets[key]
	if !ok {
		bucket = &tokenBucket{
			tokens:     float64(rl.config.RequestsPerMinute),
			maxTokens:  float64(rl.config.RequestsPerMinute),
			refillRate: float64(rl.config.RequestsPerMinute) / 60.0,
			lastRefill: time.Now(),
		}
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.consume(1)
}

func (b *tokenBucket) consume(count float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	b.lastRefill = now
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}

	if b.tokens >= count {
		b.tokens -= count
		return true
	}
	return false
}

func clientKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return "auth:" + auth
	}
	if r.RemoteAddr != "" {
		return "ip:" + r.RemoteAddr
	}
	return "unknown"
}
