// Package http delivers JSON payloads to external endpoints with retries.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultTimeout is the default request timeout.
const DefaultTimeout = 10 * time.Second

// DefaultMaxRetries is the default number of delivery attempts.
const DefaultMaxRetries = 3

// DefaultRetryWait is the default initial wait between attempts.
const DefaultRetryWait = 1 * time.Second

// Client posts JSON payloads with retry on transient failures. Rate limits
// and server errors are retried with exponential backoff; client errors are
// surfaced immediately.
type Client struct {
	client     *http.Client
	maxRetries int
	retryWait  time.Duration
}

// Config holds configuration for Client.
type Config struct {
	Client     *http.Client
	MaxRetries int
	RetryWait  time.Duration
}

// NewClient creates a delivery client with the given configuration.
func NewClient(cfg Config) *Client {
	c := &Client{
		client:     cfg.Client,
		maxRetries: cfg.MaxRetries,
		retryWait:  cfg.RetryWait,
	}

	if c.client == nil {
		c.client = &http.Client{Timeout: DefaultTimeout}
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.retryWait <= 0 {
		c.retryWait = DefaultRetryWait
	}

	return c
}

// PostJSON marshals payload and posts it to url. Transient failures are
// retried up to the configured attempt count; the final failure is returned
// as a *DeliveryError when the endpoint answered, or the transport error
// otherwise.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := range c.maxRetries {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries-1 {
				if err := c.wait(ctx, c.retryWait*time.Duration(1<<attempt)); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("post %s: %w", url, err)
		}

		if resp.StatusCode < 400 {
			resp.Body.Close()
			return nil
		}

		lastErr = newDeliveryError(resp, url)
		resp.Body.Close()

		if !retryableStatus(resp.StatusCode) || attempt == c.maxRetries-1 {
			return lastErr
		}
		if err := c.wait(ctx, retryWaitFor(resp, c.retryWait, attempt)); err != nil {
			return err
		}
	}

	return lastErr
}

// wait sleeps for d or until ctx is cancelled.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// retryWaitFor honours a Retry-After header, falling back to exponential
// backoff from the configured base.
func retryWaitFor(resp *http.Response, base time.Duration, attempt int) time.Duration {
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return base * time.Duration(1<<attempt)
}

// retryableStatus reports whether a status code is worth another attempt.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// newDeliveryError builds a DeliveryError from an error response, pulling
// the message out of a JSON body when one is present.
func newDeliveryError(resp *http.Response, url string) *DeliveryError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	derr := &DeliveryError{
		URL:        url,
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
	}

	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Message != "" {
			derr.Message = errResp.Message
		} else if errResp.Error != "" {
			derr.Message = errResp.Error
		}
	}
	if derr.Message == "" {
		derr.Message = http.StatusText(resp.StatusCode)
	}

	return derr
}
