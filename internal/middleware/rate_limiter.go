package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"clinica/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ── Token-bucket rate limiter ─────────────────────────────────────────────────
// One rate.Limiter per caller, keyed by authenticated user when available,
// otherwise by client IP. A caller idle for a full window has a refilled
// bucket, so its limiter can be dropped without changing any decision.

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu        sync.Mutex
	entries   map[string]*rateEntry
	intervalo time.Duration
	burst     int
	ttl       time.Duration
	now       func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		entries:   make(map[string]*rateEntry),
		intervalo: window / time.Duration(limit),
		burst:     limit,
		ttl:       window,
		now:       time.Now,
	}
}

// allow takes one token for key.
func (l *rateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &rateEntry{limiter: rate.NewLimiter(rate.Every(l.intervalo), l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// retryAfter is the wait for one token, in whole seconds.
func (l *rateLimiter) retryAfter() int {
	if secs := int(math.Ceil(l.intervalo.Seconds())); secs > 1 {
		return secs
	}
	return 1
}

// purge drops limiters idle longer than the window.
func (l *rateLimiter) purge() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, e := range l.entries {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// RateLimiter allows limit requests per window per caller, with bursts up to
// limit. A non-positive limit disables it. The purge loop runs until stop is
// closed.
func RateLimiter(limit int, window time.Duration, stop <-chan struct{}) gin.HandlerFunc {
	if limit <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	l := newRateLimiter(limit, window)
	go func() {
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n := l.purge(); n > 0 {
					log.Debug().Int("entries_purged", n).Msg("rate limiter purged")
				}
			}
		}
	}()

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if claims := GetClaims(c); claims != nil {
			key = "u:" + claims.UserID
		}
		if !l.allow(key) {
			c.Header("Retry-After", strconv.Itoa(l.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("Demasiadas solicitudes. Intente nuevamente en un momento."))
			return
		}
		c.Next()
	}
}
