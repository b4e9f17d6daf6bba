package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines a token bucket per client.
// Valid values:
//   - RequestsPerSecond: must be > 0
//   - Burst: must be > 0
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Validate checks that the RateLimitConfig has valid values.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("RequestsPerSecond must be > 0 (got %v)", c.RequestsPerSecond)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("Burst must be > 0 (got %d)", c.Burst)
	}
	return nil
}

// DefaultCommandLimit is applied to mutating commands: 5 per second with
// bursts of 20.
func DefaultCommandLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 5, Burst: 20}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitStore keeps one token bucket per key. Thread-safe.
type RateLimitStore struct {
	mu       sync.Mutex
	config   RateLimitConfig
	limiters map[string]*limiterEntry
	now      func() time.Time
}

// NewRateLimitStore creates a store that hands out limiters built from config.
func NewRateLimitStore(config RateLimitConfig) *RateLimitStore {
	return &RateLimitStore{
		config:   config,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow reports whether a request for key may proceed and, if not, how many
// seconds until a token is available.
func (s *RateLimitStore) Allow(key string) (bool, int) {
	s.mu.Lock()
	now := s.now()
	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.Burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	s.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 1
	}
	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	r.CancelAt(now)
	return false, max(1, int(math.Ceil(delay.Seconds())))
}

// Cleanup drops limiters idle for longer than idle. Call it periodically.
func (s *RateLimitStore) Cleanup(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-idle)
	removed := 0
	for key, e := range s.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(s.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *RateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc returns a KeyFunc that uses the client's IP address.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// RateLimiter returns 429 Too Many Requests once a client's bucket is empty.
// metrics may be nil.
func RateLimiter(store *RateLimitStore, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routePattern(r)
			if metrics != nil {
				metrics.IncRateLimitRequests(route)
			}

			allowed, retryAfter := store.Allow(keyFunc(r))
			if !allowed {
				if metrics != nil {
					metrics.IncRateLimitBlocked(route)
				}
				SetErrorCode(r.Context(), "rate_limited")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
