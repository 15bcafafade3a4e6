// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/tutorchat/internal/model"
)

// ErrEmptyChat is returned when a chat with no messages is exported as Markdown.
var ErrEmptyChat = errors.New("chat has no messages")

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders a chat as a Markdown transcript.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export implements Exporter.
func (e *MarkdownExporter) Export(chat model.Chat) ([]byte, error) {
	if len(chat.Messages) == 0 {
		return nil, ErrEmptyChat
	}

	var sb strings.Builder
	created := time.UnixMilli(chat.CreatedAt)
	updated := time.UnixMilli(chat.UpdatedAt)

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(chat.Title))
		fmt.Fprintf(&sb, "date: %s\n", created.Format(time.RFC3339))
		fmt.Fprintf(&sb, "updated: %s\n", updated.Format(time.RFC3339))
		fmt.Fprintf(&sb, "messages: %d\n", len(chat.Messages))
		if len(chat.AttachedFileIDs) > 0 {
			fmt.Fprintf(&sb, "files: %d\n", len(chat.AttachedFileIDs))
		}
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("generator: tutorchat\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(chat.Title))

	for i, msg := range chat.Messages {
		label := msg.Role.DisplayName()
		if e.options.IncludeTimestamps && msg.Timestamp > 0 {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, time.UnixMilli(msg.Timestamp).Format("Jan 2 15:04"))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if i < len(chat.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that break formatting in headings.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer("#", `\#`, "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`)
	return r.Replace(s)
}

// escapeYAML quotes values that contain YAML metacharacters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `"`, `\"`)
		s = strings.ReplaceAll(s, "\n", `\n`)
		s = strings.ReplaceAll(s, "\r", `\r`)
		return `"` + s + `"`
	}
	return s
}
