// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// UntitledChat is the title derived from empty content.
const UntitledChat = "Untitled Chat"

const titleWords = 3

// DeriveTitle builds a chat title from the first three words of content,
// appending "..." only when words were dropped.
func DeriveTitle(content string) string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return UntitledChat
	}
	if len(words) <= titleWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:titleWords], " ") + "..."
}
