// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package token issues and caches chat session tokens.
//
// Every chat owns a short-lived token that authorises its streaming calls.
// Source talks to the issuing endpoint and computes the expiry with a safety
// margin; Manager reuses a chat's cached token while it is valid and
// persists fresh ones through the chat store.
//
// # Key Types
//
//   - Source: issuance, expiry computation and fallback policy
//   - Manager: EnsureToken / Refresh over a chat
//
// # Usage
//
//	src := token.NewSource(client, chatbotID, token.WithFallback(cfg.Token.FallbackToken))
//	mgr := token.NewManager(src, store)
//	tok, err := mgr.EnsureToken(ctx, chat)
package token
