// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the tutorchat command-line interface.
//
// The root command starts the interactive chat; subcommands cover one-shot
// questions, chat history and, in the document area (--rag), uploaded
// files. Every command wires its components through NewApp, so the REPL and
// the one-shot commands share storage, tokens and the session controller.
//
// # Key Types
//
//   - App: config, storage, API client, token manager, chat store and
//     session controller for one area
//
// # Usage
//
//	tutorchat                         interactive chat
//	tutorchat ask "What is osmosis?"  one question, streamed
//	tutorchat chats list              saved chats, most recent first
//	tutorchat --rag files upload notes.pdf --attach
//
// # Commands Overview
//
//   - chat: interactive REPL with slash commands (default)
//   - ask: one question in the current chat
//   - chats: list, new, rename, delete, select, show, export
//   - files: list, upload, delete, attach, detach, toggle
//   - config: init, show, path
package cli
