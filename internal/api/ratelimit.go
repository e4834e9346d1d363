package api

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirychukyurii/domain-search/internal/cache"
	"github.com/kirychukyurii/domain-search/pkg/api"
)

// limiterTTL is how long an idle client keeps its bucket
const limiterTTL = 5 * time.Minute

// createLimiter throttles job creation per client address
type createLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters cache.Cache // client ip -> *rate.Limiter
}

func newCreateLimiter(perSecond float64, burst int) *createLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &createLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: cache.New(limiterTTL),
	}
}

func (l *createLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 0 means unlimited
		if l.limit > 0 && !l.get(clientKey(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeTooMany(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// get returns the client's limiter, refreshing its TTL
func (l *createLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.limiters.Get(key); ok {
		limiter := v.(*rate.Limiter)
		l.limiters.Set(key, limiter, 0)
		return limiter
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Set(key, limiter, 0)
	return limiter
}

// clientKey uses the address set by middleware.RealIP, without the port
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooMany(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: "too many requests",
		Code:  "rate_limited",
	})
}
