// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
)

// liveWriter prints the growing reply of a turn as it streams. Progress
// texts are cumulative, so only the unseen suffix is written.
type liveWriter struct {
	w       io.Writer
	printed string
}

func newLiveWriter(w io.Writer) *liveWriter {
	return &liveWriter{w: w}
}

// update writes whatever text adds to the output so far. When text no
// longer extends it, the reply is restarted on a fresh line.
func (l *liveWriter) update(text string) {
	if strings.HasPrefix(text, l.printed) {
		fmt.Fprint(l.w, text[len(l.printed):])
	} else {
		fmt.Fprint(l.w, "\n"+text)
	}
	l.printed = text
}

// finish completes the output with final and ends the line.
func (l *liveWriter) finish(final string) {
	l.update(final)
	if !strings.HasSuffix(l.printed, "\n") {
		fmt.Fprintln(l.w)
	}
}

// started reports whether anything has been printed.
func (l *liveWriter) started() bool {
	return l.printed != ""
}
