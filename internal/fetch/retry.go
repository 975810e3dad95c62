// Package fetch provides a generic retry-with-backoff decorator for
// outbound HTTP calls against unreliable upstreams.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// Policy controls retry behaviour for a single logical call.
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	RetryableStatuses []int
}

// DefaultPolicy mirrors the upstream's observed failure modes: 408/429 and
// the transient 5xx family are worth retrying, everything else is not.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
	}
}

func (p Policy) retryable(status int) bool {
	for _, s := range p.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ExhaustedError is returned once every allowed attempt has failed with a
// transport error or a retryable status.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Do executes the request produced by build, retrying transport errors and
// retryable status codes with exponential backoff and jitter. A response
// with a non-retryable status is returned as-is; the caller classifies it.
// build is invoked once per attempt because a request body cannot be
// replayed after a failed send.
func Do(ctx context.Context, client *http.Client, build func() (*http.Request, error), policy Policy) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req = req.WithContext(ctx)

		attempts++
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
		} else if policy.retryable(resp.StatusCode) {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		} else {
			// Success or a non-retryable error response.
			return resp, nil
		}

		// No retry after the final allowed attempt.
		if attempt == policy.MaxRetries {
			break
		}

		if err := sleep(ctx, backoffDelay(attempt, policy)); err != nil {
			return nil, err
		}
	}

	return nil, &ExhaustedError{Attempts: attempts, LastErr: lastErr}
}

// backoffDelay computes initialDelay * 2^attempt clamped to maxDelay, with
// +/-25% uniform jitter, floored at zero.
func backoffDelay(attempt int, policy Policy) time.Duration {
	delay := policy.InitialDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if policy.MaxDelay > 0 && delay >= policy.MaxDelay {
			delay = policy.MaxDelay
			break
		}
	}
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}

	jittered := delay + time.Duration((rand.Float64()-0.5)*0.5*float64(delay))
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
