// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for tutorchat.
//
// # Key Types
//
//   - Config: root configuration with api, rag, storage, token, stream and
//     log sections
//   - ValidationError: one invalid field; Validate aggregates them
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	client := aitutor.NewClient(cfg.API.APIKey).WithBaseURL(cfg.API.BaseURL)
//
// # File Format
//
//	[api]
//	base_url = "https://aitutor-api.vercel.app/api/v1"
//	api_key = "..."
//	chatbot_id = "..."
//
//	[rag]
//	api_key = "..."
//	top_k = 5
//
//	[storage]
//	backend = "sqlite"
package config
