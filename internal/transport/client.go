// Package transport talks to the remote detection service: one-shot
// requests over HTTP and continuous frames over a websocket channel.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bryanchriswhite/DetectStreamer/internal/logger"
	"github.com/google/uuid"
)

// Default timeouts for HTTP operations
const (
	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultDetectPath     = "/detect"
)

// maxResponseBytes bounds the JSON body read from the service
const maxResponseBytes = 64 << 20

// DetectRequest is the body of POST /detect
type DetectRequest struct {
	Image string `json:"image"`
}

// DetectResponse is the reply of POST /detect
type DetectResponse struct {
	Success        bool   `json:"success"`
	ProcessedImage string `json:"processed_image,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Client performs single-shot detection requests
type Client struct {
	baseURL    string
	detectPath string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the overall request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithDetectPath overrides the request path (default /detect)
func WithDetectPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.detectPath = path
		}
	}
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		detectPath: DefaultDetectPath,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: DefaultConnectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Detect sends one data-URL image and returns the processed data URL.
// A success:false reply becomes a *ServiceError whatever the HTTP status.
// There are no retries.
func (c *Client) Detect(ctx context.Context, image string) (string, error) {
	requestID := uuid.NewString()
	log := logger.WithComponent("transport").With().Str("request_id", requestID).Logger()

	body, err := json.Marshal(DetectRequest{Image: image})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.detectPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Detect request failed")
		return "", fmt.Errorf("detect request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var out DetectResponse
	if err := json.Unmarshal(data, &out); err != nil {
		log.Warn().Int("status", resp.StatusCode).Err(err).Msg("Unparseable detect response")
		return "", fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}

	if !out.Success {
		return "", &ServiceError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	if out.ProcessedImage == "" {
		return "", ErrEmptyResult
	}

	log.Debug().
		Dur("latency", time.Since(start)).
		Int("bytes", len(data)).
		Msg("Detect request complete")

	return out.ProcessedImage, nil
}

// IsServiceError reports whether err is an application-level failure
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
