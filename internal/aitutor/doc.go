// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package aitutor is the HTTP client for the AI tutoring API.
//
// Two endpoints are used:
//
//   - POST {base}/chat/token issues a short-lived session token
//   - POST {base}/chat/{token}/stream streams the tutor reply as a growing
//     tagged-quote text body (see package stream)
//
// # Key Types
//
//   - Client: configured with the API key; builder methods customise it
//   - TokenResponse: decoded token issuance response
//   - Event: one progress or terminal step of a streamed reply
//
// # Usage
//
//	client := aitutor.NewClient(apiKey).WithBaseURL(baseURL)
//	tr, err := client.IssueToken(ctx, chatbotID, "session_"+chatID)
//	for ev := range client.Stream(ctx, tr.Token, chat.APIMessages()) {
//	    switch ev.Kind {
//	    case aitutor.EventProgress:
//	        render(stream.Extract(ev.Buffer))
//	    case aitutor.EventFailed:
//	        return ev.Err
//	    }
//	}
//
// # Security
//
// The API key is never logged; request logs carry only the operation,
// status and duration.
package aitutor
