package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thoth/internal/config"
	"thoth/internal/thoth/errs"
)

// testConfig uses a near-stalled rate limiter (burst=1, ~1 token per 3
// hours) so TestGet_CachedResponseBypassesRateLimiter can prove a cache hit
// never touches the limiter: a second call that did consult it would hang
// well past the test's deadline.
func testConfig() config.GatewayConfig {
	return config.GatewayConfig{
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 0.0001, Burst: 1},
		Cache:     config.CacheConfig{TTLSeconds: 300, MaxEntries: 100},
		Retry:     config.RetryConfig{MaxAttempts: 1, InitialBackoffMS: 1, MaxBackoffMS: 5},
		Breaker:   config.BreakerConfig{FailureThreshold: 2, OpenSeconds: 60},
	}
}

// breakerTestConfig keeps a generous rate limit so breaker tests exercise
// only the circuit, not the limiter.
func breakerTestConfig() config.GatewayConfig {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}
	return cfg
}

// A nil *redis.Client makes the response cache fall back to its in-memory
// LRU, so these tests don't need a live Redis instance (same pattern as
// internal/persistence/databases's invalid-DSN-only pgx tests).
func newTestGateway(t *testing.T, handler http.Handler) (*Gateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	gw := New(testConfig(), map[string]string{"svc": srv.URL}, nil)
	return gw, srv
}

func TestGet_CachedResponseBypassesRateLimiter(t *testing.T) {
	t.Parallel()

	var hits int32
	gw, srv := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	body, err := gw.Get(ctx, "svc", "/thing", map[string]string{"q": "x"}, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))

	// The configured limiter only had a single token (burst=1) and refills
	// roughly once every three hours (rps=0.0001); a second identical GET
	// that actually consulted the limiter would hang past this deadline.
	shortCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	body2, err := gw.Get(shortCtx, "svc", "/thing", map[string]string{"q": "x"}, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body2))
	require.EqualValues(t, 1, atomic.LoadInt32(&hits), "second GET should be served from cache, not hit the origin")
}

func TestGet_UnknownServiceFailsFast(t *testing.T) {
	t.Parallel()

	gw := New(testConfig(), map[string]string{}, nil)
	_, err := gw.Get(context.Background(), "missing", "/x", nil, nil)
	require.Error(t, err)
	require.True(t, errorIsKind(err, errs.InputInvalid))
}

func TestGet_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	gw := New(breakerTestConfig(), map[string]string{"svc": srv.URL}, nil)

	ctx := context.Background()
	// FailureThreshold is 2; each Get below targets a distinct cache key
	// (param varies) so the breaker, not the cache, is what's exercised.
	for i := 0; i < 2; i++ {
		_, err := gw.Get(ctx, "svc", "/fail", map[string]string{"i": string(rune('a' + i))}, nil)
		require.Error(t, err)
	}

	_, err := gw.Get(ctx, "svc", "/fail", map[string]string{"i": "z"}, nil)
	require.Error(t, err)
	require.True(t, errorIsKind(err, errs.GatewayCircuitOpen), "expected GatewayCircuitOpen once the breaker trips, got %v", err)
}

func TestHTTPClient_RoundTripsThroughGateway(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gw := New(testConfig(), nil, nil)
	client := gw.HTTPClient("llm", 5*time.Second)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestHTTPClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := New(breakerTestConfig(), nil, nil)
	client := gw.HTTPClient("embedding", 5*time.Second)

	for i := 0; i < 2; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, err = client.Do(req)
	require.Error(t, err)
	require.True(t, errorIsKind(err, errs.GatewayCircuitOpen), "expected GatewayCircuitOpen once the breaker trips, got %v", err)
}

func errorIsKind(err error, kind errs.Kind) bool {
	return errs.New(kind, "", nil).Is(err)
}
