// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apierr defines the error taxonomy shared by the HTTP clients.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// NETWORK ERRORS
// =============================================================================

// NetworkError is a transport-level failure: DNS, connect, TLS, reset, or a
// body read that broke off. The response status is unknown.
type NetworkError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// =============================================================================
// PROTOCOL ERRORS
// =============================================================================

// ProtocolError is a response that arrived but is not a success: a non-2xx
// status, a success=false body, or a body that could not be decoded.
type ProtocolError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: [%s] (HTTP %d): %s", e.Op, e.Code, e.Status, msg)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: (HTTP %d): %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap returns the underlying decode error, if any.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// =============================================================================
// COMPONENT ERRORS
// =============================================================================

// TokenError wraps a failure to obtain a chat session token.
type TokenError struct {
	Err error
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	return fmt.Sprintf("token issuance failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TokenError) Unwrap() error {
	return e.Err
}

// RetrievalError wraps a failure of the retrieval service.
type RetrievalError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}

// IsUnauthorized reports whether err carries an HTTP 401.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsCanceled reports whether err stems from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
