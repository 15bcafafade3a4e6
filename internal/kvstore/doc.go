// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kvstore provides the durable key/value layer under the chat store.
//
// The chat store persists a handful of JSON documents under fixed keys. Some
// mutations touch two keys at once (the chat list and the current-chat
// pointer, or the file registry and the chat list), so every backend commits
// a Batch all-or-nothing.
//
// # Key Types
//
//   - Store: Get / Apply / Close
//   - Batch: queued Set and Delete operations
//   - File: one JSON document rewritten atomically (default)
//   - SQLite: one kv table, a batch is a transaction (modernc.org/sqlite)
//   - Redis: prefixed keys, a batch is MULTI/EXEC (go-redis)
//   - Memory: process-local map
//
// # Usage
//
//	kv, err := kvstore.Open(ctx, kvstore.Options{Backend: "sqlite", Dir: dataDir})
//	if err != nil {
//	    return err
//	}
//	defer kv.Close()
//
//	err = kv.Apply(ctx, kvstore.NewBatch().
//	    Set("@streaming_chats", chatsJSON).
//	    Set("@current_streaming_chat", id))
package kvstore
