// Package render wraps the external headless-render service that
// executes JavaScript and returns final page HTML.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"context"
)

// Config holds render service client configuration.
type Config struct {
	Endpoint          string        // e.g. "http://localhost:3000"
	Token             string        // optional access token
	Timeout           time.Duration // per-request timeout
	RequestsPerSecond float64       // proactive throttle, 0 disables
}

// Client calls the headless-render HTTP service.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	limiter    *rate.Limiter
}

// New creates a new render client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("render endpoint is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		endpoint:   strings.TrimSuffix(config.Endpoint, "/"),
		token:      config.Token,
		limiter:    limiter,
	}, nil
}

// contentRequest is the payload for the /content endpoint.
type contentRequest struct {
	URL         string      `json:"url"`
	GotoOptions gotoOptions `json:"gotoOptions"`
}

type gotoOptions struct {
	WaitUntil string `json:"waitUntil"`
	Timeout   int    `json:"timeout"`
}

// Content renders the page at pageURL and returns its final HTML.
func (c *Client) Content(ctx context.Context, pageURL string) (string, error) {
	body, err := json.Marshal(contentRequest{
		URL: pageURL,
		GotoOptions: gotoOptions{
			WaitUntil: "networkidle2",
			Timeout:   int(c.httpClient.Timeout / time.Millisecond),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	raw, err := c.post(ctx, "/content", body)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

// screenshotRequest is the payload for the /screenshot endpoint.
type screenshotRequest struct {
	URL string `json:"url"`
}

// Screenshot captures the page at pageURL as a binary image.
func (c *Client) Screenshot(ctx context.Context, pageURL string) ([]byte, error) {
	body, err := json.Marshal(screenshotRequest{URL: pageURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.post(ctx, "/screenshot", body)
}

// functionRequest is the payload for the /function endpoint.
type functionRequest struct {
	Code    string `json:"code"`
	Context any    `json:"context,omitempty"`
}

// Function executes a script in the browser and returns its result.
func (c *Client) Function(ctx context.Context, code string, fnContext any) ([]byte, error) {
	body, err := json.Marshal(functionRequest{Code: code, Context: fnContext})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.post(ctx, "/function", body)
}

// post issues one throttled request to the render service.
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	target := c.endpoint + path
	if c.token != "" {
		target += "?token=" + c.token
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("render request", "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render service error (status %d): %s", resp.StatusCode, truncateBody(respBody))
	}

	return respBody, nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
