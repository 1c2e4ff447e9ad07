package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"thoth/internal/config"
	"thoth/internal/thoth/errs"
)

// retryableStatus reports whether a response status should be retried per
// §4.5: 5xx and 429 are retriable, other 4xx are not.
func retryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500
}

// retryAfter parses a Retry-After header (seconds or HTTP-date) and returns
// the duration to wait, honoring it over the computed backoff when present.
func retryAfter(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// doWithRetry executes fn, retrying on transport errors and retriable status
// codes with exponential backoff and jitter, up to cfg.MaxAttempts. 429
// honors Retry-After when the server sends one. Non-retriable 4xx responses
// (other than 429) are returned immediately; the circuit breaker is applied
// by the caller around this function.
func doWithRetry(ctx context.Context, cfg config.RetryConfig, op string, fn func() (*http.Response, []byte, error)) (*http.Response, []byte, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	initial := time.Duration(cfg.InitialBackoffMS) * time.Millisecond
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	maxBackoff := time.Duration(cfg.MaxBackoffMS) * time.Millisecond
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = maxBackoff

	var lastResp *http.Response
	var lastBody []byte
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, body, err := fn()
		lastResp, lastBody, lastErr = resp, body, err

		if err != nil {
			// transport error: retry
			if attempt == maxAttempts-1 {
				return resp, body, errs.Wrap(errs.GatewayRateLimited, op, err)
			}
			wait, boErr := bo.NextBackOff()
			if boErr != nil {
				return resp, body, errs.Wrap(errs.GatewayRateLimited, op, err)
			}
			sleepCtx(ctx, wait)
			continue
		}

		if resp == nil || !retryableStatus(resp.StatusCode) {
			return resp, body, nil
		}

		if attempt == maxAttempts-1 {
			return resp, body, errs.New(errs.GatewayRateLimited, op, nil)
		}

		wait, boErr := bo.NextBackOff()
		if boErr != nil {
			return resp, body, errs.New(errs.GatewayRateLimited, op, nil)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra, ok := retryAfter(resp.Header); ok {
				wait = ra
			}
		}
		sleepCtx(ctx, wait)
	}
	return lastResp, lastBody, lastErr
}

// doRoundTripWithRetry is doWithRetry's counterpart for a raw
// http.RoundTripper: it retries transport errors and retriable statuses by
// re-issuing req via req.GetBody (set by SDK clients that build requests
// from a seekable body), rather than by re-invoking a closure that already
// has its body prepared.
func doRoundTripWithRetry(cfg config.RetryConfig, req *http.Request, rt http.RoundTripper) (*http.Response, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	initial := time.Duration(cfg.InitialBackoffMS) * time.Millisecond
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	maxBackoff := time.Duration(cfg.MaxBackoffMS) * time.Millisecond
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Second
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = maxBackoff

	var lastResp *http.Response
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attemptReq := req
		if attempt > 0 && req.GetBody != nil {
			if body, err := req.GetBody(); err == nil {
				clone := req.Clone(req.Context())
				clone.Body = body
				attemptReq = clone
			}
		}

		resp, err := rt.RoundTrip(attemptReq)
		lastResp, lastErr = resp, err

		if err != nil {
			if attempt == maxAttempts-1 {
				return resp, err
			}
			wait, boErr := bo.NextBackOff()
			if boErr != nil {
				return resp, err
			}
			sleepCtx(req.Context(), wait)
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt == maxAttempts-1 {
			return resp, nil
		}

		wait, boErr := bo.NextBackOff()
		if boErr != nil {
			return resp, nil
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			if ra, ok := retryAfter(resp.Header); ok {
				wait = ra
			}
		}
		resp.Body.Close()
		sleepCtx(req.Context(), wait)
	}
	return lastResp, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
