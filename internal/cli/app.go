// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jeranaias/tutorchat/internal/aitutor"
	"github.com/jeranaias/tutorchat/internal/chatstore"
	"github.com/jeranaias/tutorchat/internal/config"
	"github.com/jeranaias/tutorchat/internal/kvstore"
	"github.com/jeranaias/tutorchat/internal/retrieval"
	"github.com/jeranaias/tutorchat/internal/session"
	"github.com/jeranaias/tutorchat/internal/token"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// App is the fully wired client for one feature area.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	KV         kvstore.Store
	API        *aitutor.Client
	Tokens     *token.Manager
	Store      *chatstore.Store
	RAG        *retrieval.Client // nil outside the retrieval area
	Controller *session.Controller
}

// Area returns the chat store area for the --rag flag.
func Area(rag bool) chatstore.Area {
	if rag {
		return chatstore.AreaRAG
	}
	return chatstore.AreaStreaming
}

// NewApp opens storage and wires every component for area.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, area chatstore.Area) (*App, error) {
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, err
	}

	kv, err := kvstore.Open(ctx, kvstore.Options{
		Backend:  cfg.Storage.Backend,
		Dir:      dir,
		RedisURL: cfg.Storage.RedisURL,
		Prefix:   cfg.Storage.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	api := aitutor.NewClient(cfg.API.APIKey).
		WithBaseURL(cfg.API.BaseURL).
		WithTimeout(cfg.APITimeout()).
		WithMaxResponseSize(cfg.MaxResponseBytes()).
		WithLogger(logger)

	source := token.NewSource(api, cfg.API.ChatbotID,
		token.WithFallback(cfg.Token.FallbackToken),
		token.WithStrict(cfg.Token.StrictFallback),
		token.WithMargin(cfg.TokenMargin()),
		token.WithLogger(logger),
	)

	store, err := chatstore.Open(ctx, kv, area, source, chatstore.WithLogger(logger))
	if err != nil {
		kv.Close()
		return nil, err
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		KV:     kv,
		API:    api,
		Tokens: token.NewManager(source, store),
		Store:  store,
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithLiveRate(cfg.Stream.LiveUpdatesPerSec),
	}
	if area.HasFiles() {
		app.RAG = retrieval.NewClient(cfg.RAG.APIKey).
			WithBaseURL(cfg.RAG.BaseURL).
			WithTopK(cfg.RAG.TopK).
			WithTimeout(cfg.RAGTimeout()).
			WithLogger(logger)
		opts = append(opts, session.WithAugmenter(retrieval.Augmenter{Client: app.RAG}))
	}
	app.Controller = session.NewController(store, app.Tokens, api, opts...)

	return app, nil
}

// Close cancels any in-flight turn and releases storage.
func (a *App) Close() error {
	a.Controller.Cancel()
	return a.KV.Close()
}
