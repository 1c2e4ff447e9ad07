package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"thoth/internal/config"
)

// breakers holds one circuit breaker per named service. Consecutive
// failures above a threshold mark the service "cold": gobreaker opens the
// circuit and fails fast without consuming retry budget, per §4.5.
type breakers struct {
	mu   sync.Mutex
	cfg  config.BreakerConfig
	m    map[string]*gobreaker.CircuitBreaker[[]byte]
	httm map[string]*gobreaker.CircuitBreaker[*http.Response]
}

func newBreakers(cfg config.BreakerConfig) *breakers {
	return &breakers{
		cfg:  cfg,
		m:    make(map[string]*gobreaker.CircuitBreaker[[]byte]),
		httm: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
	}
}

func (b *breakers) settings(service string) gobreaker.Settings {
	threshold := b.cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openFor := time.Duration(b.cfg.OpenSeconds) * time.Second
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return gobreaker.Settings{
		Name:    service,
		Timeout: openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
}

func (b *breakers) forService(service string) *gobreaker.CircuitBreaker[[]byte] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.m[service]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](b.settings(service))
	b.m[service] = cb
	return cb
}

// forServiceHTTP is the *http.Response-typed counterpart of forService,
// used by gatewayTransport (Gateway.HTTPClient) to guard raw HTTP callers (LLM
// SDK clients, the embedding client) that can't go through Get/Post's
// JSON-body shape.
func (b *breakers) forServiceHTTP(service string) *gobreaker.CircuitBreaker[*http.Response] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.httm[service]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*http.Response](b.settings(service))
	b.httm[service] = cb
	return cb
}
