// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
//
// These types are the durable record of the application: they are stored
// verbatim by the chat store and their JSON names match the layout used by
// existing clients, so their data loads without migration.
//
// # Key Types
//
//   - Chat: a titled conversation with its message log, cached session token
//     and attached document ids
//   - Message: single log entry with role, content and epoch-ms timestamp
//   - ChatUpdate: partial-field merge applied by the store
//   - UploadedFile: a document registered with the retrieval service
//   - Token: an issued session credential
//
// # Usage
//
//	msg := model.NewUserMessage("What is photosynthesis?", time.Now())
//	title := model.DeriveTitle(msg.Content) // "What is photosynthesis?"
package model
