// Package telraam talks to the Telraam traffic-report API.
package telraam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cyclecounts/traffic-pipeline/internal/fetch"
)

// ErrInvalidResponse marks a 2xx response whose body does not match the
// expected report shape.
var ErrInvalidResponse = errors.New("invalid telraam response shape")

// APIError is a definitive (post-retry) HTTP error from the upstream.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telraam API error: %d %s", e.StatusCode, e.Body)
}

// RateLimited reports whether the upstream rejected the call for quota
// reasons; callers may choose a longer cooldown before the next attempt.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Client fetches per-hour segment reports. Calls go through the retry
// fetcher and a circuit breaker so a flapping upstream is short-circuited
// instead of burning the whole request budget sensor after sensor.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	policy     fetch.Policy
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(httpClient *http.Client, baseURL, apiKey string, policy fetch.Policy) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "telraam",
		Interval: 1 * time.Minute,
		Timeout:  2 * time.Minute,
	})

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		policy:     policy,
		breaker:    cb,
	}
}

type trafficRequest struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	ID        string `json:"id"`
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
}

// FetchHourly retrieves the validated per-hour reports for one segment over
// [start, end]. An upstream that legitimately has no rows for the window
// yields an empty slice, not an error.
func (c *Client) FetchHourly(ctx context.Context, segmentID int64, start, end time.Time) ([]HourlyReport, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchHourly(ctx, segmentID, start, end)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("telraam circuit open: %w", err)
		}
		return nil, err
	}

	reports, ok := result.([]HourlyReport)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return reports, nil
}

func (c *Client) fetchHourly(ctx context.Context, segmentID int64, start, end time.Time) ([]HourlyReport, error) {
	payload := trafficRequest{
		Level:     "segments",
		Format:    "per-hour",
		ID:        fmt.Sprintf("%d", segmentID),
		TimeStart: FormatDateTime(start),
		TimeEnd:   FormatDateTime(end),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	build := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/reports/traffic", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := fetch.Do(ctx, c.httpClient, build, c.policy)
	if err != nil {
		return nil, fmt.Errorf("telraam call for segment %d failed: %w", segmentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(text)}
	}

	var decoded trafficResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := validateReports(decoded.Report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return decoded.Report, nil
}
