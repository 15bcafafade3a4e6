// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retrieval

import (
	"context"
	"strings"
)

// BuildAugmentedPrompt wraps query with the retrieved passages. Passages are
// joined with a blank line.
func BuildAugmentedPrompt(docs []Document, query string) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}

	var b strings.Builder
	b.WriteString("Answer the query based on the following document content:\n\n")
	b.WriteString(strings.Join(parts, "\n\n"))
	b.WriteString("\n\nQuery: ")
	b.WriteString(query)
	return b.String()
}

// Augmenter adapts a Client to the session controller's augmentation hook.
type Augmenter struct {
	Client *Client
}

// Augment searches fileIDs for query and returns the augmented prompt.
func (a Augmenter) Augment(ctx context.Context, query string, fileIDs []string) (string, error) {
	docs, err := a.Client.Search(ctx, query, fileIDs)
	if err != nil {
		return "", err
	}
	return BuildAugmentedPrompt(docs, query), nil
}
