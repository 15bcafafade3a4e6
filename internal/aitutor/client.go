// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package aitutor is the HTTP client for the AI tutoring API.
package aitutor

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/tutorchat/internal/apierr"
)

// Configuration constants for the tutoring API.
const (
	// DefaultBaseURL is the hosted API root.
	DefaultBaseURL = "https://aitutor-api.vercel.app/api/v1"

	// DefaultTimeout bounds unary requests such as token issuance.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxResponseSize caps a streamed response body.
	// SECURITY: Response size limit prevents memory exhaustion.
	DefaultMaxResponseSize = 10 * 1024 * 1024

	// maxErrorBody caps how much of a failed response is kept for messages.
	maxErrorBody = 4 * 1024

	userAgent = "tutorchat/0.1"
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	sharedHTTPClient = &http.Client{
		Transport: newTransport(),
		Timeout:   DefaultTimeout,
	}

	// sharedStreamingClient has no timeout; streams end by context.
	sharedStreamingClient = &http.Client{
		Transport: newTransport(),
	}
)

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// ErrNotConfigured indicates the API key is not set.
var ErrNotConfigured = errors.New("tutoring API key not configured")

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the token and streaming endpoints.
type Client struct {
	apiKey          string
	baseURL         string
	httpClient      *http.Client
	streamClient    *http.Client
	maxResponseSize int64
	logger          *slog.Logger
}

// NewClient creates a client for apiKey against DefaultBaseURL.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:          strings.TrimSpace(apiKey),
		baseURL:         DefaultBaseURL,
		httpClient:      sharedHTTPClient,
		streamClient:    sharedStreamingClient,
		maxResponseSize: DefaultMaxResponseSize,
		logger:          slog.Default(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithTimeout sets the unary request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout <= 0 {
		return c
	}
	hc := *c.httpClient
	hc.Timeout = timeout
	c.httpClient = &hc
	return c
}

// WithHTTPClient replaces both underlying clients (tests use httptest).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = hc
	return c
}

// WithMaxResponseSize sets the streamed body cap in bytes.
func (c *Client) WithMaxResponseSize(n int64) *Client {
	if n > 0 {
		c.maxResponseSize = n
	}
	return c
}

// WithLogger sets the request logger.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// IsConfigured returns true if the client has an API key configured.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// REQUEST/RESPONSE LOGGING (without sensitive data)
// =============================================================================

// logRequest logs method and path only.
// SECURITY: headers carry the API key and the path of a stream carries the
// session token, so neither is logged in full.
func (c *Client) logRequest(req *http.Request, op string) {
	c.logger.Debug("API request", "op", op, "method", req.Method)
}

func (c *Client) logResponse(op string, resp *http.Response, duration time.Duration) {
	c.logger.Debug("API response", "op", op, "status", resp.StatusCode, "duration", duration.Round(time.Millisecond))
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

// =============================================================================
// TOKEN ISSUANCE
// =============================================================================

// TokenRequest is the body of POST /chat/token.
type TokenRequest struct {
	ChatbotID string `json:"chatbotId"`
	SessionID string `json:"sessionId"`
}

// TokenResponse is the decoded body of POST /chat/token.
type TokenResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expires_in"`
	Error     *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// IssueToken requests a session token for sessionID.
func (c *Client) IssueToken(ctx context.Context, chatbotID, sessionID string) (*TokenResponse, error) {
	const op = "token"
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(TokenRequest{ChatbotID: chatbotID, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	c.logRequest(req, op)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apierr.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.logResponse(op, resp, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*4))
	if err != nil {
		return nil, &apierr.NetworkError{Op: op, Err: err}
	}

	var tr TokenResponse
	decodeErr := json.Unmarshal(raw, &tr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, protocolError(op, resp.StatusCode, tr.Error, raw)
	}
	if decodeErr != nil {
		return nil, &apierr.ProtocolError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", decodeErr)}
	}
	if !tr.Success || tr.Token == "" {
		pe := protocolError(op, resp.StatusCode, tr.Error, nil)
		if pe.Message == "" {
			pe.Message = "response did not contain a token"
		}
		return nil, pe
	}
	return &tr, nil
}

func protocolError(op string, status int, ae *apiError, raw []byte) *apierr.ProtocolError {
	pe := &apierr.ProtocolError{Op: op, Status: status}
	if ae != nil {
		pe.Message = ae.Message
		pe.Code = ae.Code
	}
	if pe.Message == "" && len(raw) > 0 {
		pe.Message = strings.TrimSpace(string(truncate(raw, 200)))
	}
	return pe
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
