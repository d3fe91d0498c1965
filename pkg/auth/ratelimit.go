package auth

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/covenant-labs/covenant/pkg/api"
)

// Limiter hands out one token-bucket limiter per actor. Actors are keyed by
// authenticated subject, falling back to remote address.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewLimiter creates a limiter pool with the given per-actor rate. Non
// positive rates and bursts are clamped to 1; a pool that admits nothing
// would otherwise lock every actor out and break the Retry-After math.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *Limiter) limiterFor(actor string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[actor]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[actor] = lim
	}
	return lim
}

// Allow consumes one token for the actor.
func (l *Limiter) Allow(actor string) bool {
	return l.limiterFor(actor).Allow()
}

// RateLimitMiddleware enforces per-actor rate limiting at the HTTP layer.
// On rate limit exceeded it returns 429 with a Retry-After header. A nil
// limiter disables limiting (dev mode).
func RateLimitMiddleware(limiter *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			actor := r.RemoteAddr
			if principal, err := GetPrincipal(r.Context()); err == nil {
				actor = principal.Subject
			}

			if !limiter.Allow(actor) {
				retryAfter := int(1 / float64(limiter.rps))
				if retryAfter < 1 {
					retryAfter = 1
				}
				api.WriteTooManyRequests(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
