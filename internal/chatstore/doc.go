// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatstore persists the chat collection of a feature area.
//
// A Store holds the chats of one Area, the pointer to the current chat and,
// for the retrieval area, the registry of uploaded files. It is the only
// writer of those keys. Each mutation is written as one kvstore batch, so a
// failed write leaves both the durable and the in-memory state as they were.
//
// # Key Types
//
//   - Area: the storage keys of a feature area (AreaStreaming, AreaRAG)
//   - Store: chat CRUD, current-chat pointer, file registry and attachments
//   - Issuer: mints the session token of a new chat
//
// # Usage
//
//	store, err := chatstore.Open(ctx, kv, chatstore.AreaRAG, tokenSource)
//	chat, err := store.CreateChat(ctx, "")
//	chat, err = store.SaveChatUpdates(ctx, chat.ID, model.ChatUpdate{
//	    Append: []model.Message{model.NewUserMessage("hi", time.Now())},
//	})
package chatstore
