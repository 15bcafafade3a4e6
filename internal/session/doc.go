// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs chat turns against the streaming endpoint.
//
// A Controller owns the lifecycle of one turn at a time:
//
//	Idle -> Sending -> Streaming -> Completed | Failed | Cancelled -> Idle
//
// Submit persists the user's message before any network call, then obtains
// a session token, optionally folds retrieved document context into the
// outbound copy of the question, and streams the reply. Progress events
// carry the decoded text so far. A turn always ends with exactly one
// terminal event, and every terminal path returns the controller to Idle.
//
// Failures persist an apology as the assistant reply and refresh the token
// once. A 401 is retried exactly once with a fresh token. Cancelling a turn
// persists nothing, and a cancelled turn can never write to the chat log.
//
// # Key Types
//
//   - Controller: Submit, Run, Cancel, Live
//   - Turn: Events and Wait for one submitted message
//   - Event: progress or terminal step of a turn
//
// # Usage
//
//	ctrl := session.NewController(store, tokens, client,
//	    session.WithAugmenter(retrieval.Augmenter{Client: rc}))
//	turn, err := ctrl.Submit(ctx, "Explain photosynthesis")
//	for ev := range turn.Events() {
//	    if ev.Kind == session.EventProgress {
//	        render(ev.Text)
//	    }
//	}
package session
