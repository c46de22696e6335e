// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the backend API.
const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize caps response bodies read into memory.
	MaxResponseSize = 10 * 1024 * 1024
)

var (
	// sharedHTTPClient handles all non-streaming requests. Connection
	// pooling is shared across every Client instance.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient carries SSE bodies. No timeout; lifetime is
	// controlled by the request context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// Sentinel errors.
var (
	// ErrNotConfigured indicates the base URL is not set.
	ErrNotConfigured = errors.New("backend URL not configured")

	// ErrNotFound indicates the requested session or share does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the auth token was rejected.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a structured error response from the backend.
type APIError struct {
	Code    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
}

// apiErrorResponse is the backend's error envelope.
type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Client talks to the fondchat backend on behalf of one user.
type Client struct {
	baseURL      string
	authToken    string
	userID       string
	httpClient   *http.Client
	streamClient *http.Client

	// feedbackLimiter throttles the fire-and-forget feedback endpoint so
	// a rage-clicked thumbs button cannot flood the backend.
	feedbackLimiter *rate.Limiter

	verbose bool
}

// NewClient creates a client for the given backend base URL, e.g.
// "https://app.example.com". An empty base URL yields a client whose
// calls fail with ErrNotConfigured.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:         baseURL,
		httpClient:      sharedHTTPClient,
		streamClient:    sharedStreamingClient,
		feedbackLimiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

// WithAuthToken sets the bearer token sent on every request.
func (c *Client) WithAuthToken(token string) *Client {
	c.authToken = token
	return c
}

// WithUserID sets the acting user id. Share joins and invitation polls
// require it.
func (c *Client) WithUserID(userID string) *Client {
	c.userID = userID
	return c
}

// WithHTTPClient overrides the transport. Used by tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithVerbose enables request/response logging.
func (c *Client) WithVerbose(v bool) *Client {
	c.verbose = v
	return c
}

// UserID returns the acting user id.
func (c *Client) UserID() string {
	return c.userID
}

// endpoint joins the base URL with a path and optional query values.
func (c *Client) endpoint(path string, query url.Values) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.userID != "" {
		req.Header.Set("X-User-Id", c.userID)
	}
}

// doJSON performs a request with an optional JSON body and decodes the
// JSON response into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint, err := c.endpoint(path, query)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.verbose {
		log.Printf("api: %s %s -> %d (%v)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkStatus maps non-2xx responses to typed errors, consuming the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	var envelope apiErrorResponse
	if err := json.Unmarshal(data, &envelope); err == nil {
		msg := envelope.Message
		if msg == "" {
			msg = envelope.Error
		}
		if msg != "" {
			return &APIError{Code: envelope.Code, Message: msg, Status: resp.StatusCode}
		}
	}
	return &APIError{Message: http.StatusText(resp.StatusCode), Status: resp.StatusCode}
}
