// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved chats to files.
//
// # Key Types
//
//   - Exporter: renders a chat in one format
//   - MarkdownExporter: human-readable transcript with YAML frontmatter
//   - JSONExporter: the chat record without its session token
//   - Options: output directory and Markdown detail
//
// # Usage
//
//	exp, err := export.ForFormat("md", export.DefaultOptions())
//	path, err := export.ToFile(chat, exp, opts)
package export
