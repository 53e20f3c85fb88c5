// Package httpx wraps an HTTP transport with bounded exponential
// backoff so platform adapters get a single call that yields either a
// final response or a transport failure.
package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const (
	// MaxRetries is the default retry budget for retryable failures.
	MaxRetries = 3

	// BaseDelay is the initial backoff step.
	BaseDelay = 1 * time.Second

	// MaxDelay caps any single sleep, including Retry-After hints.
	MaxDelay = 60 * time.Second
)

// retryable statuses: rate limiting plus transient server errors.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client retries requests with exponential backoff, honoring
// Retry-After. Non-retryable responses return immediately; a retryable
// response that exhausts the budget is returned for the caller to
// inspect; exhausted transport errors re-raise the last error.
type Client struct {
	HTTP       *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// sleep is swapped in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Client with the default 30s transport timeout and
// retry policy.
func New() *Client {
	return &Client{
		HTTP:       &http.Client{Timeout: 30 * time.Second},
		MaxRetries: MaxRetries,
		BaseDelay:  BaseDelay,
		MaxDelay:   MaxDelay,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request issues method/url with the given headers and body, retrying
// on 429/5xx and transport errors. The body is buffered so it can be
// re-sent on each attempt.
func (c *Client) Request(ctx context.Context, method, url string, headers http.Header, body []byte) (*http.Response, error) {
	if c.sleep == nil {
		c.sleep = sleepCtx
	}

	// Exponential schedule: base, 2*base, 4*base, ... capped at MaxDelay.
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.BaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0 // fixed schedule: base, 2x, 4x, ...
	policy.MaxInterval = c.MaxDelay
	policy.Reset()

	var lastErr error
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			if attempt >= c.MaxRetries {
				return nil, lastErr
			}
			delay := c.clamp(policy.NextBackOff())
			log.Warn().Err(err).Str("method", method).Str("url", url).
				Int("attempt", attempt+1).Dur("delay", delay).
				Msg("transport error, retrying")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt >= c.MaxRetries {
			// Out of budget: hand the response back for inspection.
			return resp, nil
		}

		delay := c.retryDelay(resp, policy)
		// Drain so the connection can be reused before the retry.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		log.Warn().Int("status", resp.StatusCode).Str("method", method).Str("url", url).
			Int("attempt", attempt+1).Dur("delay", delay).
			Msg("retryable response, backing off")
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// retryDelay prefers the server's Retry-After hint, clamped to
// MaxDelay, falling back to the exponential schedule.
func (c *Client) retryDelay(resp *http.Response, policy backoff.BackOff) time.Duration {
	next := policy.NextBackOff()
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil && secs >= 0 {
			return c.clamp(time.Duration(secs * float64(time.Second)))
		}
	}
	return c.clamp(next)
}

func (c *Client) clamp(d time.Duration) time.Duration {
	max := c.MaxDelay
	if max <= 0 {
		max = MaxDelay
	}
	if d > max || d == backoff.Stop {
		return max
	}
	return d
}
