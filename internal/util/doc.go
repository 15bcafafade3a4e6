// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across tutorchat.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//
// Display Helpers:
//   - TruncateWidth, PadWidth: column-aware truncation for list output
//   - SingleLine: flatten message previews
//
// # Usage
//
//	// Write the durable store atomically
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Fit a chat title into a 32 column table cell
//	cell := util.PadWidth(chat.Title, 32)
package util
