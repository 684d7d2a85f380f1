package httpclient

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	"go.uber.org/zap"
)

type Options struct {
	Timeout     time.Duration
	MaxRetries  int
	MaxFailures int
	OpenTimeout time.Duration
}

type Client struct {
	client     *http.Client
	cb         *CircuitBreaker
	maxRetries int
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	return &Client{
		client:     &http.Client{Timeout: opts.Timeout},
		cb:         NewCircuitBreaker(opts.MaxFailures, opts.OpenTimeout),
		maxRetries: opts.MaxRetries,
	}
}

// HTTPClient exposes the underlying client so other libraries (oauth2) share
// its timeout.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

func (c *Client) Get(ctx context.Context, baseURL string, queryParams map[string]string, headers map[string]string) (*http.Response, error) {
	return c.attemptRequestWithRetry(ctx, func() (*http.Request, error) {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, err
		}

		q := u.Query()
		for k, v := range queryParams {
			q.Add(k, v)
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}

		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
}

// attemptRequestWithRetry retries network errors and 5xx responses with
// exponential backoff. Responses below 500 are returned to the caller as-is.
func (c *Client) attemptRequestWithRetry(ctx context.Context, reqFactory func() (*http.Request, error)) (*http.Response, error) {
	if err := c.cb.CheckBeforeRequest(); err != nil {
		logger.Warn("request blocked by circuit breaker", zap.Error(err))
		return nil, err
	}

	const baseDelay = 100 * time.Millisecond
	const maxJitterMs = 100

	var lastErr error
	var response *http.Response

	for i := 0; i <= c.maxRetries; i++ {
		req, err := reqFactory()
		if err != nil {
			return nil, fmt.Errorf("error creating request: %w", err)
		}

		response, err = c.client.Do(req)
		lastErr = err

		if err == nil && response.StatusCode < 500 {
			c.cb.OnSuccess()
			return response, nil
		}

		if i == c.maxRetries {
			break
		}

		backoff := baseDelay * time.Duration(math.Pow(2, float64(i)))
		jitter := time.Duration(rand.IntN(maxJitterMs)) * time.Millisecond
		sleepDuration := backoff + jitter

		if response != nil {
			response.Body.Close()
		}

		logger.Warn("request failed, retrying",
			zap.Int("attempt", i+1),
			zap.Duration("sleep", sleepDuration),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleepDuration):
		}
	}

	c.cb.OnFailure()

	if lastErr != nil {
		return nil, fmt.Errorf("all retries failed, last network error: %w", lastErr)
	}

	status := response.Status
	response.Body.Close()
	return nil, fmt.Errorf("all retries failed, last status: %s", status)
}
