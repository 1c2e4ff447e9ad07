package gateway

import (
	"sync"

	"golang.org/x/time/rate"

	"thoth/internal/config"
)

// limiters holds one token bucket per named service, created lazily from
// the gateway's configured floor (requests/sec, burst).
type limiters struct {
	mu  sync.Mutex
	cfg config.RateLimitConfig
	m   map[string]*rate.Limiter
}

func newLimiters(cfg config.RateLimitConfig) *limiters {
	return &limiters{cfg: cfg, m: make(map[string]*rate.Limiter)}
}

func (l *limiters) forService(service string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.m[service]; ok {
		return lim
	}
	rps := l.cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := l.cfg.Burst
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	l.m[service] = lim
	return lim
}
