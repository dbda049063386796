package source

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"studentjobs/collector-service/internal/model"
)

const defaultTimeout = 15 * time.Second

// StatusError is a non-2xx HTTP response, kept distinct from network errors
// so retry logic can tell transient from fatal failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "unexpected status " + http.StatusText(e.Code)
}

// IsAuthFailure reports whether err is a 401/403 response.
func IsAuthFailure(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden)
}

// Client wraps http.Client with a requests-per-minute ceiling and
// exponential-backoff retries for transient failures (429, 5xx, network
// errors). Other non-2xx statuses fail immediately.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger

	mu    sync.Mutex
	retry model.RetryPolicy
}

// NewClient constructs a Client. requestsPerMin <= 0 disables rate limiting.
func NewClient(timeout time.Duration, requestsPerMin int, retry model.RetryPolicy, log *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if requestsPerMin > 0 {
		limit = rate.Limit(float64(requestsPerMin) / 60.0)
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
		log:     log.Named("http"),
	}
}

// SetRequestsPerMin replaces the rate ceiling. rpm <= 0 disables limiting.
// Safe to call while requests are in flight.
func (c *Client) SetRequestsPerMin(rpm int) {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Limit(float64(rpm) / 60.0)
	}
	c.limiter.SetLimit(limit)
}

// SetRetryPolicy replaces the backoff policy for subsequent requests.
func (c *Client) SetRetryPolicy(p model.RetryPolicy) {
	c.mu.Lock()
	c.retry = p
	c.mu.Unlock()
}

func (c *Client) retryPolicy() model.RetryPolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry
}

// Get performs a rate-limited GET with retries and returns the body.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return req, nil
	})
}

// PostForm performs a rate-limited form POST with retries and returns the
// body.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) ([]byte, error) {
	retry := c.retryPolicy()
	var lastErr error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(retry, attempt-1)
			c.log.Debugw("retrying request", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, errors.Wrap(err, "build request")
		}

		body, err := c.once(req)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isTransient(err) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(lastErr, "request failed after %d retries", retry.MaxRetries)
}

func (c *Client) once(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// isTransient reports whether a failure qualifies for retry: network errors,
// 429 and 5xx responses.
func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true // network-level failure
}

// backoffDelay computes initialDelay * backoffFactor^attempt.
func backoffDelay(p model.RetryPolicy, attempt int) time.Duration {
	delay := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffFactor
	}
	return time.Duration(delay)
}
