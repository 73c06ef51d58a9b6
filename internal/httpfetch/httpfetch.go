// Package httpfetch provides the bounded-timeout HTTP GET fetcher that
// internal/directory consumes through its narrow Fetcher interface (A4).
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// userAgent identifies the accelerator to remote node-list endpoints.
const userAgent = "mcaccel/1.0 (+node-directory-client)"

// defaultTimeout bounds a single GET when New is given a non-positive
// timeout.
const defaultTimeout = 10 * time.Second

// Client is the default net/http-backed Fetcher.
type Client struct {
	hc *http.Client
}

// New creates a Client. timeout bounds every request; zero uses
// defaultTimeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{hc: &http.Client{Timeout: timeout}}
}

// Get performs a bounded-timeout GET, returning the status code and full
// response body. Satisfies directory.Fetcher.
func (c *Client) Get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("httpfetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("httpfetch: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("httpfetch: read body: %w", err)
	}
	return resp.StatusCode, body, nil
}
