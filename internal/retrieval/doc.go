// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retrieval is the client for the document retrieval (RAG) service.
//
// Documents are uploaded once and referenced by file id afterwards. Before a
// turn in a chat with attached files, the user's question is searched
// against those files and the top passages are folded into the outbound
// prompt. The stored chat log always keeps the user's original text.
//
// # Key Types
//
//   - Client: Search (/embeddings) and Upload (/upload_file)
//   - Document: one retrieved passage
//   - Augmenter: Search + BuildAugmentedPrompt for the session controller
//
// # Usage
//
//	rc := retrieval.NewClient(cfg.RAG.APIKey).WithBaseURL(cfg.RAG.BaseURL)
//	docs, err := rc.Search(ctx, "What is osmosis?", chat.AttachedFileIDs)
//	prompt := retrieval.BuildAugmentedPrompt(docs, "What is osmosis?")
package retrieval
