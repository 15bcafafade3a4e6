// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// DefaultChatTitle is used for chats created without an explicit title.
const DefaultChatTitle = "New Chat"

// =============================================================================
// CHAT TYPE
// =============================================================================

// Chat is a persisted conversation. Timestamps are epoch milliseconds and the
// JSON names match the durable layout shared with existing clients.
type Chat struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Messages        []Message `json:"messages"`
	CreatedAt       int64     `json:"createdAt"`
	UpdatedAt       int64     `json:"updatedAt"`
	Token           string    `json:"token,omitempty"`
	TokenExpiry     int64     `json:"tokenExpiry,omitempty"`
	AttachedFileIDs []string  `json:"attachedFileIds"`
}

// HasValidToken reports whether the cached token can be used at now.
// Expiry is exclusive: a token expiring exactly at now is stale.
func (c *Chat) HasValidToken(now time.Time) bool {
	return c.Token != "" && c.TokenExpiry > now.UnixMilli()
}

// APIMessages maps the log to the outbound request shape.
func (c *Chat) APIMessages() []APIMessage {
	out := make([]APIMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		out = append(out, APIMessage{Role: m.Role.String(), Content: m.Content})
	}
	return out
}

// HasDefaultTitle reports whether the chat still carries DefaultChatTitle and
// should take its title from the next successful reply.
func (c *Chat) HasDefaultTitle() bool {
	return c.Title == DefaultChatTitle
}

// LastMessage returns the final log entry, if any.
func (c *Chat) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Normalize fills fields that older records may lack.
func (c *Chat) Normalize() {
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	if c.AttachedFileIDs == nil {
		c.AttachedFileIDs = []string{}
	}
	if c.UpdatedAt < c.CreatedAt {
		c.UpdatedAt = c.CreatedAt
	}
}

// Clone returns a deep copy so callers never share slices with the store.
func (c Chat) Clone() Chat {
	out := c
	out.Messages = append([]Message(nil), c.Messages...)
	out.AttachedFileIDs = append([]string(nil), c.AttachedFileIDs...)
	out.Normalize()
	return out
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

// ChatUpdate is a partial-field merge. Nil fields are left untouched.
type ChatUpdate struct {
	Title           *string
	Messages        []Message // replaces the log when non-nil
	Append          []Message // appended after Messages is applied
	Token           *string
	TokenExpiry     *int64
	AttachedFileIDs []string // replaces the set when non-nil
}

// Apply merges the update into c and stamps UpdatedAt, never below CreatedAt.
func (u ChatUpdate) Apply(c *Chat, now time.Time) {
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.Messages != nil {
		c.Messages = append([]Message(nil), u.Messages...)
	}
	if len(u.Append) > 0 {
		c.Messages = append(c.Messages, u.Append...)
	}
	if u.Token != nil {
		c.Token = *u.Token
	}
	if u.TokenExpiry != nil {
		c.TokenExpiry = *u.TokenExpiry
	}
	if u.AttachedFileIDs != nil {
		c.AttachedFileIDs = append([]string{}, u.AttachedFileIDs...)
	}
	c.UpdatedAt = now.UnixMilli()
	if c.UpdatedAt < c.CreatedAt {
		c.UpdatedAt = c.CreatedAt
	}
}

// StringPtr is a helper for building ChatUpdate values.
func StringPtr(s string) *string { return &s }

// Int64Ptr is a helper for building ChatUpdate values.
func Int64Ptr(n int64) *int64 { return &n }
