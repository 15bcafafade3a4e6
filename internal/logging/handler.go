// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the colored slog handler used by tutorchat.
package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Handler.
type Options struct {
	// Level is the minimum level written. Nil means slog.LevelInfo.
	Level slog.Leveler

	// TimeFormat formats the record time. Empty omits it.
	TimeFormat string

	// AddSource prefixes each line with file:line of the caller.
	AddSource bool

	// NoColor strips ANSI sequences from the output.
	NoColor bool
}

// DefaultOptions is used when NewHandler receives nil.
var DefaultOptions = &Options{
	Level:      slog.LevelInfo,
	TimeFormat: time.TimeOnly,
	AddSource:  true,
}

// =============================================================================
// HANDLER
// =============================================================================

// Handler writes one colored line per record:
//
//	15:04:05 WARN  token.go:88 | token issuance failed err=...
type Handler struct {
	groups []string
	attrs  []slog.Attr
	opts   Options

	mu  *sync.Mutex
	out io.Writer
}

// NewHandler creates a Handler writing to out.
func NewHandler(out io.Writer, opts *Options) *Handler {
	h := &Handler{out: out, mu: &sync.Mutex{}}
	if opts == nil {
		h.opts = *DefaultOptions
	} else {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

func (h *Handler) clone() *Handler {
	return &Handler{
		groups: append([]string(nil), h.groups...),
		attrs:  append([]slog.Attr(nil), h.attrs...),
		opts:   h.opts,
		mu:     h.mu,
		out:    h.out,
	}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	bf := getBuffer()
	defer freeBuffer(bf)

	if h.opts.TimeFormat != "" && !r.Time.IsZero() {
		fmt.Fprint(bf, color.New(color.Faint).Sprint(r.Time.Format(h.opts.TimeFormat)), " ")
	}

	fmt.Fprint(bf, levelLabel(r.Level), " ")

	if h.opts.AddSource && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fmt.Fprintf(bf, "%s:%d ", filepath.Base(f.File), f.Line)
	}

	fmt.Fprint(bf, color.HiWhiteString("| "), r.Message)

	prefix := h.groupPrefix()
	writeAttr := func(key string, a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		if strings.Contains(a.Key, "err") {
			fmt.Fprint(bf, " ", color.New(color.FgRed).Sprintf("%s=", key), a.Value.String())
		} else {
			fmt.Fprint(bf, " ", color.New(color.FgCyan).Sprintf("%s=", key), a.Value.String())
		}
	}
	for _, a := range h.attrs {
		writeAttr(a.Key, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(prefix+a.Key, a)
		return true
	})

	bf.WriteByte('\n')

	if h.opts.NoColor {
		stripANSI(bf)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.Copy(h.out, bf)
	return err
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	prefix := h.groupPrefix()
	for _, a := range attrs {
		a.Key = prefix + a.Key
		h2.attrs = append(h2.attrs, a)
	}
	return h2
}

func (h *Handler) groupPrefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func levelLabel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return color.New(color.BgRed, color.FgHiWhite).Sprint("ERROR")
	case l >= slog.LevelWarn:
		return color.New(color.BgYellow, color.FgHiWhite).Sprint("WARN ")
	case l >= slog.LevelInfo:
		return color.New(color.BgGreen, color.FgHiWhite).Sprint("INFO ")
	default:
		return color.New(color.BgCyan, color.FgHiWhite).Sprint("DEBUG")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

var bufPool = sync.Pool{
	New: func() any {
		return &bytes.Buffer{}
	},
}

func getBuffer() *bytes.Buffer {
	bf := bufPool.Get().(*bytes.Buffer)
	bf.Reset()
	return bf
}

func freeBuffer(bf *bytes.Buffer) {
	bufPool.Put(bf)
}

// ansi matches ANSI color escape sequences.
var ansi = regexp.MustCompile("[\u001B\u009B][[\\]()#;?]*(?:(?:(?:[a-zA-Z\\d]*(?:;[a-zA-Z\\d]*)*)?\u0007)|(?:(?:\\d{1,4}(?:;\\d{0,4})*)?[\\dA-PRZcf-ntqry=><~]))")

func stripANSI(bf *bytes.Buffer) {
	cleaned := ansi.ReplaceAll(bf.Bytes(), nil)
	bf.Reset()
	bf.Write(cleaned)
}

// Err wraps an error as a slog attribute under the "err" key.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err", err.Error())
}
