// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the colored slog handler used by tutorchat.
//
// Log lines go to stderr so they never interleave with streamed tutor output
// on stdout.
//
// # Usage
//
//	logger := logging.Setup(cfg.Log.Level, cfg.Log.NoColor)
//	logger.Warn("token issuance failed, using fallback", logging.Err(err))
package logging
