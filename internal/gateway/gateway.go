// Package gateway implements Thoth's external API gateway (§4.5): the
// single choke point for all outbound HTTP to research APIs (Semantic
// Scholar, OpenCitations, arXiv, Crossref, Unpaywall, PubMed, OpenAlex,
// bioRxiv, the configurable LLM/embedding endpoints, and an optional
// Google Scholar scraper). It composes rate limiting, response caching,
// retry with jitter, and a circuit breaker around a plain http.Client,
// following the request/response/error shape of internal/embedding/client.go.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"thoth/internal/config"
	"thoth/internal/logging"
	"thoth/internal/thoth/errs"
)

// Gateway is the constructor-injected façade every Thoth component that
// needs to reach a research API depends on, rather than holding an
// *http.Client directly.
type Gateway struct {
	httpClient *http.Client
	services   map[string]string // name -> base URL
	limits     *limiters
	cache      *responseCache
	breakers   *breakers
	retryCfg   config.RetryConfig
}

// New constructs a Gateway from configuration. services maps a logical
// service name (e.g. "semanticscholar") to its base URL; unknown service
// names passed to Get/Post fail fast per §4.5.
func New(cfg config.GatewayConfig, services map[string]string, rdb *redis.Client) *Gateway {
	return &Gateway{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		services:   services,
		limits:     newLimiters(cfg.RateLimit),
		cache:      newResponseCache(rdb, cfg.Cache.TTLSeconds, cfg.Cache.MaxEntries),
		breakers:   newBreakers(cfg.Breaker),
		retryCfg:   cfg.Retry,
	}
}

// Get issues a GET against service+path, applying the full resilience
// stack. params are sorted into the query string and factor into the
// cache key; headers are passed through verbatim (never logged).
func (g *Gateway) Get(ctx context.Context, service, path string, params map[string]string, headers map[string]string) (json.RawMessage, error) {
	return g.do(ctx, http.MethodGet, service, path, params, headers, nil)
}

// Post issues a POST with a JSON body against service+path.
func (g *Gateway) Post(ctx context.Context, service, path string, body map[string]any, headers map[string]string) (json.RawMessage, error) {
	var b []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, errs.Wrap(errs.InputInvalid, "gateway.post", err)
		}
		b = encoded
	}
	return g.do(ctx, http.MethodPost, service, path, nil, headers, b)
}

func (g *Gateway) do(ctx context.Context, method, service, path string, params map[string]string, headers map[string]string, body []byte) (json.RawMessage, error) {
	base, ok := g.services[service]
	if !ok {
		return nil, errs.New(errs.InputInvalid, "gateway."+method, fmt.Errorf("unknown service %q", service))
	}
	fullURL, err := buildURL(base, path, params)
	if err != nil {
		return nil, errs.Wrap(errs.InputInvalid, "gateway."+method, err)
	}

	key := cacheKey(method, fullURL, params, body)
	if method == http.MethodGet {
		if cached, ok := g.cache.get(ctx, key); ok {
			return json.RawMessage(cached), nil
		}
	}

	lim := g.limits.forService(service)
	if err := lim.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.GatewayRateLimited, "gateway."+method, err)
	}

	cb := g.breakers.forService(service)
	respBody, err := cb.Execute(func() ([]byte, error) {
		resp, b, rerr := doWithRetry(ctx, g.retryCfg, "gateway."+method+" "+service, func() (*http.Response, []byte, error) {
			return g.roundtrip(ctx, method, fullURL, headers, body)
		})
		if rerr != nil {
			return nil, rerr
		}
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("%s %s: status %s: %s", method, fullURL, resp.Status, truncate(b, 300))
		}
		return b, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errs.Wrap(errs.GatewayCircuitOpen, "gateway."+method+" "+service, err)
		}
		return nil, errs.Wrap(errs.InputInvalid, "gateway."+method+" "+service, err)
	}

	if method == http.MethodGet {
		g.cache.set(ctx, key, respBody)
	}
	return json.RawMessage(respBody), nil
}

// HTTPClient returns an *http.Client whose Transport applies the
// gateway's rate limiter, retry-with-backoff, and circuit breaker for
// service, so a component that needs a raw *http.Client — an LLM SDK
// client or the embedding client, rather than Get/Post's JSON-body shape —
// still goes through the §4.5 resilience stack. Unlike Get/Post this path
// never consults or populates the response cache: LLM and embedding
// requests are not idempotent-by-URL the way a research-API lookup is.
func (g *Gateway) HTTPClient(service string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &gatewayTransport{gw: g, service: service, base: http.DefaultTransport},
	}
}

// gatewayTransport adapts the gateway's per-service limiter/breaker/retry
// stack to the http.RoundTripper interface expected by SDK-provided
// HTTP clients.
type gatewayTransport struct {
	gw      *Gateway
	service string
	base    http.RoundTripper
}

func (t *gatewayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	lim := t.gw.limits.forService(t.service)
	if err := lim.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.GatewayRateLimited, "gateway.transport."+t.service, err)
	}

	cb := t.gw.breakers.forServiceHTTP(t.service)
	resp, err := cb.Execute(func() (*http.Response, error) {
		r, rerr := doRoundTripWithRetry(t.gw.retryCfg, req, t.base)
		if rerr != nil {
			return r, rerr
		}
		if retryableStatus(r.StatusCode) {
			// Counts against the breaker like any other failure, but the
			// response itself is real: the caller (an LLM SDK client, the
			// embedding client) reads its own status/body, so it's
			// returned below rather than discarded.
			return r, fmt.Errorf("gateway.transport.%s: status %s", t.service, r.Status)
		}
		return r, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errs.Wrap(errs.GatewayCircuitOpen, "gateway.transport."+t.service, err)
		}
		if resp != nil {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

func (g *Gateway) roundtrip(ctx context.Context, method, fullURL string, headers map[string]string, body []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, err
	}
	return resp, b, nil
}

func buildURL(base, path string, params map[string]string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

func init() {
	// logging.Log is the shared sink; the gateway never logs secrets, only
	// service names, status codes, and timings.
	_ = logging.Log
}
