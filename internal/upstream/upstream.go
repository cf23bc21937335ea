// Package upstream wraps outbound HTTP calls to third-party services with
// throttling, retry with exponential backoff, and a circuit breaker.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"cinewise/internal/metrics"
)

const maxBodyBytes = 8 << 20

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("upstream temporarily unavailable")

// StatusError reports a non-2xx response.
type StatusError struct {
	Service string
	Code    int
	Status  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed: %s", e.Service, e.Status)
}

// Retryable reports whether the response code is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Options tunes a Client. Zero values pick the defaults used by the
// metadata client.
type Options struct {
	Service          string
	MinInterval      time.Duration
	Attempts         uint
	Backoff          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client performs requests against one upstream service.
type Client struct {
	service  string
	httpc    *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]byte]
	attempts uint
	backoff  time.Duration
}

// New builds a Client. httpc may be nil.
func New(httpc *http.Client, opts Options) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 300 * time.Millisecond
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	c := &Client{
		service:  opts.Service,
		httpc:    httpc,
		limiter:  rate.NewLimiter(limit, 1),
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
	}

	threshold := opts.FailureThreshold
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        opts.Service,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			var done *callerDoneError
			if err == nil || errors.As(err, &done) {
				return true
			}
			// A rejected request (bad key, unknown id) says nothing about availability.
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Retryable()
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[%s] circuit breaker %s -> %s", name, from, to)
			metrics.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return c
}

// callerDoneError marks a failure caused by the caller's own context being
// cancelled or past its deadline. It does not count against the breaker.
type callerDoneError struct {
	err error
}

func (e *callerDoneError) Error() string { return e.err.Error() }
func (e *callerDoneError) Unwrap() error { return e.err }

// Do executes the request produced by newReq and returns the response body
// of a 2xx answer. newReq is invoked once per attempt so bodies can be replayed.
func (c *Client) Do(ctx context.Context, operation string, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		body, err := c.doWithRetry(ctx, operation, newReq)
		if err != nil && ctx.Err() != nil {
			// The caller gave up or ran out of time; the service is not at fault.
			return nil, &callerDoneError{err: err}
		}
		return body, err
	})
	metrics.UpstreamLatency.WithLabelValues(c.service, operation).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(c.service, operation, "ok").Inc()
		return body, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues(c.service, operation, "breaker_open").Inc()
		return nil, fmt.Errorf("%s %s: %w", c.service, operation, ErrUnavailable)
	default:
		metrics.UpstreamRequests.WithLabelValues(c.service, operation, "error").Inc()
		return nil, err
	}
}

func (c *Client) doWithRetry(ctx context.Context, operation string, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			req, err := newReq(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
				se := &StatusError{Service: c.service, Code: resp.StatusCode, Status: resp.Status}
				if se.Retryable() {
					return se
				}
				return retry.Unrecoverable(se)
			}

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return err
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[%s] %s failed (attempt %d/%d): %v", c.service, operation, n+1, c.attempts, err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// State exposes the breaker state for health reporting.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
