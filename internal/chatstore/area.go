// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

// Area names the storage keys of one feature area. Areas never share chats.
type Area struct {
	Name       string
	ChatsKey   string
	CurrentKey string
	FilesKey   string // empty when the area has no uploaded-file registry
}

var (
	// AreaStreaming is plain streaming chat.
	AreaStreaming = Area{
		Name:       "streaming",
		ChatsKey:   "@streaming_chats",
		CurrentKey: "@current_streaming_chat",
	}

	// AreaRAG is streaming chat augmented with retrieved document context.
	AreaRAG = Area{
		Name:       "rag",
		ChatsKey:   "@streamingrag_chats",
		CurrentKey: "@current_streamingrag_chat",
		FilesKey:   "@uploaded_files",
	}
)

// HasFiles reports whether the area keeps an uploaded-file registry.
func (a Area) HasFiles() bool {
	return a.FilesKey != ""
}

// corruptKey holds an unreadable value that was set aside on open.
func corruptKey(key string) string {
	return key + ".corrupt"
}
