// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/tutorchat/internal/model"
	"github.com/jeranaias/tutorchat/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

var (
	markdownRenderer *glamour.TermRenderer
	markdownOnce     sync.Once
)

// renderMarkdown renders content for terminal display. It returns content
// unchanged when stdout is not a terminal or rendering fails.
func renderMarkdown(content string) string {
	if !IsStdoutTTY() {
		return content
	}
	markdownOnce.Do(func() {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(GetTerminalWidth()-4),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// MESSAGES
// =============================================================================

func roleLabel(r model.Role) string {
	if r == model.RoleUser {
		return UserStyle.Render(r.DisplayName())
	}
	return TutorStyle.Render(r.DisplayName())
}

// printMessage writes one message with its role label.
func printMessage(w io.Writer, m model.Message) {
	fmt.Fprintln(w, roleLabel(m.Role))
	if m.Role == model.RoleAssistant {
		fmt.Fprintln(w, strings.TrimRight(renderMarkdown(m.Content), "\n"))
	} else {
		fmt.Fprintln(w, m.Content)
	}
	fmt.Fprintln(w)
}

// printTranscript writes the chat header and every message.
func printTranscript(w io.Writer, chat model.Chat) {
	fmt.Fprintln(w, TitleStyle.Render(chat.Title))
	fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("%d messages, updated %s",
		len(chat.Messages), formatRelative(time.UnixMilli(chat.UpdatedAt), time.Now()))))
	fmt.Fprintln(w, RenderSeparatorAdaptive())
	for _, m := range chat.Messages {
		printMessage(w, m)
	}
}

// =============================================================================
// LISTINGS
// =============================================================================

// formatRelative renders t relative to now the way the history list shows
// dates: "just now", minutes, hours, "yesterday", days, then a date.
func formatRelative(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 48*time.Hour:
		return "yesterday"
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}

// preview returns the last message as a single line.
func preview(chat model.Chat) string {
	last, ok := chat.LastMessage()
	if !ok {
		return "No messages yet"
	}
	return util.SingleLine(last.Content)
}

// printChatTable lists chats in columns. The current chat is marked.
func printChatTable(w io.Writer, chats []model.Chat, currentID string, now time.Time) {
	width := GetTerminalWidth()
	titleW := 28
	previewW := width - titleW - 30
	if previewW < 10 {
		previewW = 10
	}

	for i, c := range chats {
		marker := "  "
		if c.ID == currentID {
			marker = CurrentStyle.Render("* ")
		}
		fmt.Fprintf(w, "%s%3d  %s  %s  %s\n",
			marker,
			i+1,
			util.PadWidth(c.Title, titleW),
			DimStyle.Render(util.PadWidth(formatRelative(time.UnixMilli(c.UpdatedAt), now), 12)),
			DimStyle.Render(util.TruncateWidth(preview(c), previewW)),
		)
	}
}

// printFileTable lists uploaded files, marking the ones attached to chat.
func printFileTable(w io.Writer, files []model.UploadedFile, attached []string) {
	on := make(map[string]bool, len(attached))
	for _, id := range attached {
		on[id] = true
	}
	if len(files) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No uploaded files. Upload one with: tutorchat --rag files upload <path>"))
		return
	}
	for i, f := range files {
		mark := "[ ]"
		if on[f.FileID] {
			mark = SuccessStyle.Render("[x]")
		}
		fmt.Fprintf(w, "%3d  %s %s  %s\n", i+1, mark, util.PadWidth(f.FileName, 32), DimStyle.Render(f.FileID))
	}
}
