package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

const (
	maxTrackedClients = 10000
	clientIdleTTL     = 10 * time.Minute
)

// Limiter hands out one token bucket per client. Idle clients are
// forgotten after clientIdleTTL.
type Limiter struct {
	mu      sync.Mutex
	clients    *lru.LRU[string, *rate.Limiter]
	limit      rate.Limit
	burst      int
	// trustProxy keys clients by X-Forwarded-For instead of RemoteAddr.
	trustProxy bool
}

// NewLimiter returns nil when cfg.RPS is not positive, which disables
// limiting.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	if cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = int(cfg.RPS) + 1
	}
	return &Limiter{
		clients: lru.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL),
		limit:      rate.Limit(cfg.RPS),
		burst:      burst,
		trustProxy: cfg.TrustProxy,
	}
}

// Allow consumes a token for client.
func (l *Limiter) Allow(client string) bool {
	l.mu.Lock()
	lim, ok := l.clients.Get(client)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// Re-adding refreshes the idle TTL.
	l.clients.Add(client, lim)
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimit rejects clients that exceed their budget with 429. Health
// probes are never limited. A nil limiter passes everything through.
func RateLimit(limiter *Limiter, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.Allow(limiter.clientIP(r)) {
				m.RateLimited()
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the peer address. Behind a trusted proxy it is the last
// X-Forwarded-For hop instead, the one that proxy appended; earlier hops
// are whatever the client chose to send.
func (l *Limiter) clientIP(r *http.Request) string {
	if l.trustProxy {
		fwd := r.Header.Values("X-Forwarded-For")
		if len(fwd) > 0 {
			hops := strings.Split(fwd[len(fwd)-1], ",")
			if ip := strings.TrimSpace(hops[len(hops)-1]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
