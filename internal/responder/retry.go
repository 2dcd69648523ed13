package responder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// A guest is waiting on every generation, and the router enforces a reply
// deadline on ctx, so retries stay few and the backoff short. The deadline,
// not the retry loop, decides when to give up.
const maxRetries = 2

var retryBaseDelay = time.Second

// transientError is a provider response worth retrying: rate limit or 5xx.
type transientError struct {
	statusCode int
	body       string
}

func (e *transientError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.body)
}

// doWithRetry executes an HTTP request against a completion endpoint,
// retrying transient failures with jittered backoff. A Retry-After header on
// 429 overrides the computed backoff.
func doWithRetry(ctx context.Context, client *http.Client, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var lastErr error
	var wait time.Duration

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if wait == 0 {
				base := time.Duration(attempt) * retryBaseDelay
				wait = base + time.Duration(rand.Int64N(int64(base/2+1)))
			}
			logger.Warn("retrying completion request", "attempt", attempt+1, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait = 0
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxRetries {
				logger.Warn("completion request failed, will retry", "error", err)
				continue
			}
			return nil, fmt.Errorf("completion request failed after %d retries: %w", maxRetries, err)
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = &transientError{statusCode: resp.StatusCode, body: truncate(string(body), 200)}
			if resp.StatusCode == http.StatusTooManyRequests {
				wait = retryAfter(resp)
			}
			if attempt < maxRetries {
				logger.Warn("provider returned transient error, will retry",
					"status", resp.StatusCode, "body", truncate(string(body), 200))
				continue
			}
			return nil, fmt.Errorf("provider error after %d retries: %w", maxRetries, lastErr)
		}

		return resp, nil
	}

	return nil, lastErr
}

// retryAfter parses a Retry-After header given in seconds. Zero means the
// header was absent or unusable and the computed backoff applies.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	secs, err := strconv.Atoi(h)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
