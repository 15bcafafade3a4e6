// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chats and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Tutor"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one entry of a chat's log. Timestamp is epoch milliseconds.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// NewMessage creates a message with a fresh id stamped at now.
func NewMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now.UnixMilli(),
	}
}

// NewUserMessage creates a user message stamped at now.
func NewUserMessage(content string, now time.Time) Message {
	return NewMessage(RoleUser, content, now)
}

// NewAssistantMessage creates an assistant message stamped at now.
func NewAssistantMessage(content string, now time.Time) Message {
	return NewMessage(RoleAssistant, content, now)
}

// APIMessage is the {role, content} shape sent to the streaming endpoint.
type APIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
