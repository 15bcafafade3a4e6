// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package token

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/tutorchat/internal/logging"
	"github.com/jeranaias/tutorchat/internal/model"
)

// ChatUpdater persists token fields. *chatstore.Store implements it.
type ChatUpdater interface {
	SaveChatUpdates(ctx context.Context, id string, upd model.ChatUpdate) (model.Chat, error)
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager guarantees a non-expired token is available before a streaming
// call, reusing the chat's cached token while it is valid.
type Manager struct {
	source *Source
	store  ChatUpdater
	now    func() time.Time
	logger *slog.Logger

	// mu serialises issuance so two callers never mint tokens for the same
	// chat concurrently.
	mu sync.Mutex
}

// NewManager creates a Manager issuing through source and caching in store.
func NewManager(source *Source, store ChatUpdater) *Manager {
	return &Manager{
		source: source,
		store:  store,
		now:    source.now,
		logger: source.logger,
	}
}

// EnsureToken returns chat's cached token when it is still valid. Otherwise
// it issues a new one and persists it (token and expiry) before returning.
// A fallback token is returned but never cached.
func (m *Manager) EnsureToken(ctx context.Context, chat model.Chat) (string, error) {
	if chat.HasValidToken(m.now()) {
		return chat.Token, nil
	}
	return m.issue(ctx, chat.ID)
}

// Refresh issues and persists a new token regardless of the cached one.
func (m *Manager) Refresh(ctx context.Context, chat model.Chat) (string, error) {
	return m.issue(ctx, chat.ID)
}

func (m *Manager) issue(ctx context.Context, chatID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.source.IssueForChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if tok.Fallback {
		return tok.Value, nil
	}

	_, err = m.store.SaveChatUpdates(ctx, chatID, model.ChatUpdate{
		Token:       model.StringPtr(tok.Value),
		TokenExpiry: model.Int64Ptr(tok.Expiry),
	})
	if err != nil {
		// The token is still good for this turn; it is re-issued next time.
		m.logger.Warn("failed to cache session token", "chat", chatID, logging.Err(err))
	}
	return tok.Value, nil
}
