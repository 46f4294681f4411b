package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	apiContext "github.com/nagomirachel/flagsmith/internal/api/context"
	"github.com/nagomirachel/flagsmith/internal/platform/auth"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per (caller, limit class). Buckets idle
// for ten minutes are dropped by the cleanup loop.
type RateLimiter struct {
	store *sync.Map // map[string]*entry
}

type entry struct {
	limiter    *rate.Limiter
	mu         sync.Mutex
	lastAccess time.Time
}

var rateLimits = map[string]int{
	"api_read":  1000, // reads per minute
	"api_write": 100,  // writes per minute
}

func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{store: &sync.Map{}}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		rl.store.Range(func(key, value interface{}) bool {
			e := value.(*entry)
			e.mu.Lock()
			if now.Sub(e.lastAccess) > 10*time.Minute {
				rl.store.Delete(key)
			}
			e.mu.Unlock()
			return true
		})
	}
}

func (rl *RateLimiter) Allow(key string, perMinute int) bool {
	val, _ := rl.store.LoadOrStore(key, &entry{
		limiter:    rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		lastAccess: time.Now(),
	})

	e := val.(*entry)
	e.mu.Lock()
	e.lastAccess = time.Now()
	e.mu.Unlock()

	return e.limiter.Allow()
}

var GlobalRateLimiter = NewRateLimiter()

func RateLimit(limitType string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var key string
			if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok && claims != nil {
				key = fmt.Sprintf("%s:%s", claims.OrganisationID, limitType)
			} else {
				key = fmt.Sprintf("%s:%s", r.RemoteAddr, limitType)
			}

			limit, ok := rateLimits[limitType]
			if !ok {
				limit = 100
			}

			if !GlobalRateLimiter.Allow(key, limit) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next(w, r)
		}
	}
}
