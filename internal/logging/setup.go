// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParseLevel maps a config level name to a slog.Level. Unknown names map to
// info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs a Handler on stderr as the slog default and returns the
// logger. Colors are disabled when stderr is not a terminal.
func Setup(level string, noColor bool) *slog.Logger {
	noColor = noColor || !term.IsTerminal(int(os.Stderr.Fd()))
	return SetupWriter(os.Stderr, level, noColor)
}

// SetupWriter is Setup for an arbitrary writer.
func SetupWriter(w io.Writer, level string, noColor bool) *slog.Logger {
	logger := slog.New(NewHandler(w, &Options{
		Level:      ParseLevel(level),
		TimeFormat: DefaultOptions.TimeFormat,
		AddSource:  true,
		NoColor:    noColor,
	}))
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(NewHandler(io.Discard, &Options{Level: slog.LevelError + 1}))
}
