// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestHandler_WritesPlainLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, &Options{Level: slog.LevelDebug, NoColor: true}))

	logger.With("chat", "c1").WithGroup("stream").Warn("turn failed", "status", 500, Err(errors.New("boom")))

	line := buf.String()
	for _, want := range []string{"WARN", "turn failed", "chat=c1", "stream.status=500", "stream.err=boom"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Errorf("NoColor output contains ANSI escapes: %q", line)
	}
}

func TestHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, &Options{Level: slog.LevelWarn, NoColor: true}))

	logger.Info("hidden")
	logger.Error("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("error record should be written")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestErr_Nil(t *testing.T) {
	if !Err(nil).Equal(slog.Attr{}) {
		t.Error("Err(nil) should be the empty attr")
	}
}
