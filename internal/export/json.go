// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"

	"github.com/jeranaias/tutorchat/internal/model"
)

// JSONExporter writes the chat record as indented JSON.
// SECURITY: the cached session token is never exported.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Export implements Exporter.
func (e *JSONExporter) Export(chat model.Chat) ([]byte, error) {
	out := chat.Clone()
	out.Token = ""
	out.TokenExpiry = 0
	return json.MarshalIndent(out, "", "  ")
}

// FileExtension implements Exporter.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
