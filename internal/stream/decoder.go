// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the tagged-quote text stream returned by the
// tutoring API.
package stream

import (
	"strings"
)

// =============================================================================
// DECODER
// =============================================================================

// DefaultTag is the channel tag that marks text segments.
const DefaultTag = "0"

// Decoder extracts the concatenated text of every complete segment tagged
// with Tag. The zero value uses DefaultTag.
type Decoder struct {
	Tag string
}

var defaultDecoder = Decoder{Tag: DefaultTag}

// Extract is Decoder{Tag: "0"}.Extract.
func Extract(raw string) string {
	return defaultDecoder.Extract(raw)
}

// Extract returns the display text contained in raw. It never fails:
// malformed or unterminated segments are skipped, and calling it again on a
// longer prefix of the same stream yields a superset of the earlier text.
//
// PERFORMANCE: Extract rescans the whole buffer on every call. That is linear
// in the buffer and fine for chat-sized responses.
func (d Decoder) Extract(raw string) string {
	segments := d.Segments(raw)
	if len(segments) == 0 {
		return ""
	}

	var b strings.Builder
	for _, seg := range segments {
		unescapeInto(&b, seg)
	}
	return collapseNewlines(b.String())
}

// Segments returns the raw (still escaped) payload of each complete segment,
// in stream order.
func (d Decoder) Segments(raw string) []string {
	tag := d.Tag
	if tag == "" {
		tag = DefaultTag
	}
	marker := tag + `:"`

	var out []string
	i := 0
	for i < len(raw) {
		idx := strings.Index(raw[i:], marker)
		if idx < 0 {
			break
		}
		start := i + idx

		// "10:" must not match as "0:"; the tag has to start a token.
		if start > 0 && isAlnum(raw[start-1]) {
			i = start + 1
			continue
		}

		bodyStart := start + len(marker)
		end, ok := closingQuote(raw, bodyStart)
		if !ok {
			// Unterminated trailing segment: more bytes are still on the way.
			break
		}
		out = append(out, raw[bodyStart:end])
		i = end + 1
	}
	return out
}

// closingQuote finds the first unescaped '"' at or after from. A backslash
// always consumes the byte after it.
func closingQuote(s string, from int) (int, bool) {
	for j := from; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '"':
			return j, true
		}
	}
	return 0, false
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// =============================================================================
// UNESCAPING
// =============================================================================

// unescapeInto decodes \n \t \" \' and \\ in a single left-to-right pass, so
// an escaped backslash is never read as the start of another escape.
// Unknown escapes are kept verbatim.
func unescapeInto(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\'':
			b.WriteByte('\'')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
}

// collapseNewlines limits every run of newlines to at most two.
func collapseNewlines(s string) string {
	if !strings.Contains(s, "\n\n\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	run := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			run++
			if run > 2 {
				continue
			}
		} else {
			run = 0
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
