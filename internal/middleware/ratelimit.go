package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/chronicle/internal/apperror"
	"github.com/sakif/chronicle/internal/auth"
	"github.com/sakif/chronicle/internal/handler"
)

// RateLimiterConfig sets the per-user token buckets.
type RateLimiterConfig struct {
	GeneralRate     rate.Limit // every protected route
	GeneralBurst    int
	AIRate          rate.Limit // POST /ai/chat, on top of the general limit
	AIBurst         int
	CleanupInterval time.Duration // idle limiters are dropped after twice this
}

// PerMinute builds a config from requests-per-minute figures. The burst
// equals the per-minute figure, so a quiet user may spend a minute's
// allowance at once.
func PerMinute(general, ai int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(general) / 60),
		GeneralBurst:    general,
		AIRate:          rate.Limit(float64(ai) / 60),
		AIBurst:         ai,
		CleanupInterval: 5 * time.Minute,
	}
}

// DefaultRateLimiterConfig is 120 requests per minute overall and 10 AI
// prompts per minute.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return PerMinute(120, 10)
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet is one bucket per user for a single limit.
type limiterSet struct {
	name  string
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter
}

func newLimiterSet(name string, r rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		name:     name,
		rate:     r,
		burst:    burst,
		limiters: make(map[string]*userLimiter),
	}
}

func (s *limiterSet) get(userID string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	ul, ok := s.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.limiters[userID] = ul
	}
	ul.lastAccess = now
	return ul.limiter
}

func (s *limiterSet) sweep(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, ul := range s.limiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(s.limiters, userID)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter keeps per-user limiters for the general and AI limits.
// Limiters are created on first use and dropped by a background loop once
// idle; call Stop to end the loop.
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	ai      *limiterSet
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter builds the limiter and, when config.CleanupInterval is
// positive, starts a goroutine that drops idle buckets. Call Stop to end it.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		ai:      newLimiterSet("ai", config.AIRate, config.AIBurst),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// General limits every protected route. Mount it after RequireAuth.
func (rl *RateLimiter) General() func(http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// AI limits the chat endpoint. Mount it after RequireAuth.
func (rl *RateLimiter) AI() func(http.Handler) http.Handler {
	return rl.middleware(rl.ai)
}

func (rl *RateLimiter) middleware(set *limiterSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				handler.WriteError(w, r, apperror.Unauthorized())
				return
			}

			if !set.get(userID, rl.now()).Allow() {
				slog.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("userID", userID),
					slog.String("limit", set.name),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter(set.rate)))
				handler.WriteError(w, r, apperror.RateLimited())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter is the number of whole seconds until one token is back.
func retryAfter(r rate.Limit) int {
	if r <= 0 {
		return 60
	}
	return max(1, int(math.Ceil(1/float64(r))))
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	now := rl.now()
	ttl := rl.config.CleanupInterval * 2
	rl.general.sweep(now, ttl)
	rl.ai.sweep(now, ttl)
}
