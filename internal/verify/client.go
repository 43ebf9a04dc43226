package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Shared HTTP plumbing for source clients: one GET round trip decoded into a
// typed payload, and bounded retry with exponential backoff + jitter.
// A 429 is surfaced as errThrottled so callers can feed the rate limiter.
// ---------------------------------------------------------------------------

var errThrottled = errors.New("too many requests")

const userAgent = "TokenSentry/1.0"

// getJSON performs one GET and decodes the body into out. Non-200 statuses
// and malformed payloads are returned as errors; the caller decides whether
// to retry or degrade to a "source unavailable" record.
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return errThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(body), 120))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	return nil
}

// postJSON performs one POST with a JSON body and decodes the response.
func postJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return errThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(respBody), 120))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	return nil
}

// withRetry runs fn up to attempts times with exponential backoff + jitter.
// fn returning errThrottled still consumes an attempt; the caller is expected
// to have reported the throttle to the limiter already.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = time.Second
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := base * time.Duration(1<<uint(attempt-1))
			backoff += time.Duration(rand.Int63n(int64(base)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
