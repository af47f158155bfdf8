package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ClientOptions parameterise the shared upstream HTTP client.
type ClientOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Timeout     time.Duration
	UserAgent   string
}

// Client wraps http.Client with bounded retries and per-attempt timeouts.
// Transport failures and non-2xx statuses are retried with linear backoff
// (BaseDelay * attempt); malformed JSON is never retried.
type Client struct {
	opts   ClientOptions
	http   *http.Client
	logger zerolog.Logger
}

// NewClient constructs a retrying upstream client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "fundingradar/1.0"
	}

	return &Client{
		opts:   opts,
		http:   &http.Client{},
		logger: logger.With().Str("component", "upstream_client").Logger(),
	}
}

// GetJSON issues a GET and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return c.do(ctx, http.MethodGet, url, header, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, nil, body, out)
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, body []byte, out any) error {
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		payload, err := c.once(ctx, method, url, header, body)
		if err == nil {
			if decodeErr := json.Unmarshal(payload, out); decodeErr != nil {
				// Malformed JSON will not get better on a retry.
				return fmt.Errorf("decode upstream response: %w", decodeErr)
			}
			return nil
		}

		lastErr = err
		c.logger.Warn().Err(err).Str("url", url).
			Int("attempt", attempt).Int("max_attempts", c.opts.MaxAttempts).
			Msg("upstream call failed")

		if attempt == c.opts.MaxAttempts {
			break
		}

		timer := time.NewTimer(c.opts.BaseDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

func (c *Client) once(ctx context.Context, method, url string, header http.Header, body []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(callCtx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	return payload, nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
	RetMsg  string `json:"retMsg"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Msg != "" {
			return fmt.Errorf("upstream error (%d): %s", status, apiErr.Msg)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("upstream error (%d): %s", status, apiErr.Message)
		}
		if apiErr.RetMsg != "" {
			return fmt.Errorf("upstream error (%d): %s", status, apiErr.RetMsg)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("upstream error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("upstream error (%d)", status)
}
