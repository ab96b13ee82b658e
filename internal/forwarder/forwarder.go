// Package forwarder retries an HTTP POST of a patch descriptor to the
// downstream execution runner, wrapped in a circuit breaker so a wedged
// runner trips open instead of being retried forever. The fixed-backoff
// retry loop is grounded on core/pkg/kernel/retry/backoff.go's retry
// shape; the breaker itself is new, grounded on sony/gobreaker directly
// since the teacher repo does not wrap its own outbound calls with one.
package forwarder

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Result reports the outcome of a forward attempt.
type Result struct {
	Forwarded  bool
	StatusCode int
	Attempts   int
	Err        error
}

// Forwarder POSTs patch bytes to a configured downstream URL.
type Forwarder struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	retries int
	backoff time.Duration
}

// Config configures a Forwarder.
type Config struct {
	URL             string
	Timeout         time.Duration
	RetryCount      int
	Backoff         time.Duration
	BreakerName     string
	BreakerMaxFails uint32
	BreakerTimeout  time.Duration
}

// New creates a Forwarder. BreakerMaxFails consecutive failures trip the
// breaker open for BreakerTimeout before it allows a single probe request
// through again.
func New(cfg Config) *Forwarder {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.BreakerMaxFails == 0 {
		cfg.BreakerMaxFails = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: cfg.BreakerName,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFails
		},
		Timeout: cfg.BreakerTimeout,
	})

	return &Forwarder{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		retries: cfg.RetryCount,
		backoff: cfg.Backoff,
	}
}

// Forward POSTs body with Content-Type application/json, retrying up to
// retries additional attempts with a fixed backoff on transport error or
// non-2xx response. Forward never returns an error for the caller's own
// request to fail on — the caller's response success must not depend on
// forward success — it only reports whether the forward ultimately
// succeeded.
func (f *Forwarder) Forward(ctx context.Context, body []byte) Result {
	var result Result

	for attempt := 0; attempt <= f.retries; attempt++ {
		result.Attempts = attempt + 1

		_, err := f.breaker.Execute(func() (any, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("forwarder: build request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := f.client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("forwarder: transport: %w", err)
			}
			defer resp.Body.Close()

			result.StatusCode = resp.StatusCode
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("forwarder: downstream returned %d", resp.StatusCode)
			}
			return nil, nil
		})

		if err == nil {
			result.Forwarded = true
			result.Err = nil
			return result
		}

		result.Err = err

		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return result
		}

		if attempt < f.retries {
			select {
			case <-time.After(f.backoff):
			case <-ctx.Done():
				result.Err = ctx.Err()
				return result
			}
		}
	}

	return result
}
