package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Clock   clock.Clock
	Backoff BackoffConfig
}

var defaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// APIError is a failure the provider reported on purpose: a 4xx answer or
// a 2xx body that says the request failed. It is never retried and does
// not count against the breaker.
type APIError struct {
	Provider string
	Status   int
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
}

// apiClient is the request path of one provider. Network errors, 429 and
// 5xx answers are retried with exponential backoff on the configured clock.
type apiClient struct {
	provider string
	cfg      HTTPClientConfig
	breaker  *gobreaker.CircuitBreaker

	// check inspects a 2xx body and returns an *APIError when the provider
	// reports a failure inside it.
	check func(body []byte) error
}

func newAPIClient(provider string, cfg HTTPClientConfig, check func([]byte) error) *apiClient {
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = defaultBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	return &apiClient{
		provider: provider,
		cfg:      cfg,
		check:    check,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        provider,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				return err == nil || errors.As(err, &apiErr)
			},
		}),
	}
}

// get fetches rawURL and returns the checked body.
func (c *apiClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	delay := c.cfg.Backoff.InitialInterval
	for attempt := 0; ; attempt++ {
		body, err := c.attempt(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !retryable(err) || attempt >= c.cfg.Backoff.MaxRetries {
			return nil, err
		}

		timer := c.cfg.Clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C():
		}
		delay *= 2
		if limit := c.cfg.Backoff.MaxInterval; limit > 0 && delay > limit {
			delay = limit
		}
	}
}

func (c *apiClient) attempt(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.cfg.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errRateLimited
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, &APIError{Provider: c.provider, Status: resp.StatusCode, Message: excerpt(body)}
		}
		if c.check != nil {
			if err := c.check(body); err != nil {
				return nil, err
			}
		}
		return body, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w: %v", c.provider, errCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func retryable(err error) bool {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr), errors.Is(err, errCircuitOpen):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
