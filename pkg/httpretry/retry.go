// Package httpretry wraps outbound HTTP calls with bounded retries and
// exponential backoff for transient failures.
package httpretry

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Policy controls how many attempts are made and how long to wait between
// them. The backoff doubles after each failed attempt up to MaxBackoff.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy matches the behavior expected of download and upstream
// fetch paths: three attempts, starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// retryableStatus reports whether the response status is worth retrying.
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

// Do executes the request produced by newReq, retrying transport errors and
// retryable statuses per the policy. newReq is called once per attempt so
// request bodies are fresh each time. The caller owns the returned response
// body.
func Do(ctx context.Context, client *http.Client, newReq func(ctx context.Context) (*http.Request, error), policy Policy) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := policy.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("upstream returned %s", resp.Status)
			resp.Body.Close()
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}
