// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apierr defines the error taxonomy shared by the HTTP clients.
//
// # Key Types
//
//   - NetworkError: the request never produced a response
//   - ProtocolError: a response arrived with a non-success status or body
//   - TokenError: session token issuance failed
//   - RetrievalError: the retrieval service failed (wraps one of the above)
//
// All types implement Unwrap, so callers classify with errors.As or the
// IsUnauthorized / IsNetwork / IsCanceled helpers.
package apierr
