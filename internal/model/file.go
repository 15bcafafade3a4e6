// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// UploadedFile is a document registered with the retrieval service.
type UploadedFile struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

// Token is an issued chat-session credential. A zero Expiry means the value
// must not be cached (fallback tokens).
type Token struct {
	Value    string
	Expiry   int64
	Fallback bool
}
