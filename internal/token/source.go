// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package token issues and caches chat session tokens.
package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeranaias/tutorchat/internal/aitutor"
	"github.com/jeranaias/tutorchat/internal/apierr"
	"github.com/jeranaias/tutorchat/internal/logging"
	"github.com/jeranaias/tutorchat/internal/model"
)

const (
	// DefaultMargin is subtracted from the server-reported lifetime so a
	// token is never presented in its final seconds.
	DefaultMargin = 5 * time.Second

	// DefaultLifetime is assumed when the server reports no lifetime and the
	// token carries no exp claim.
	DefaultLifetime = 60 * time.Second
)

// Issuer is the token endpoint. *aitutor.Client implements it.
type Issuer interface {
	IssueToken(ctx context.Context, chatbotID, sessionID string) (*aitutor.TokenResponse, error)
}

// SessionID is the session identity sent when issuing a token for a chat.
func SessionID(chatID string) string {
	return "session_" + chatID
}

// =============================================================================
// SOURCE
// =============================================================================

// Source turns issuance responses into model.Token values and applies the
// fallback policy. It holds no per-chat state.
type Source struct {
	issuer    Issuer
	chatbotID string
	fallback  string
	strict    bool
	margin    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// SourceOption customises a Source.
type SourceOption func(*Source)

// WithFallback sets the static token used when issuance fails.
func WithFallback(token string) SourceOption {
	return func(s *Source) { s.fallback = token }
}

// WithStrict makes issuance failures errors even when a fallback is set.
func WithStrict(strict bool) SourceOption {
	return func(s *Source) { s.strict = strict }
}

// WithMargin overrides DefaultMargin.
func WithMargin(d time.Duration) SourceOption {
	return func(s *Source) {
		if d >= 0 {
			s.margin = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) SourceOption {
	return func(s *Source) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SourceOption {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSource creates a Source for chatbotID.
func NewSource(issuer Issuer, chatbotID string, opts ...SourceOption) *Source {
	s := &Source{
		issuer:    issuer,
		chatbotID: chatbotID,
		margin:    DefaultMargin,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue requests a token for sessionID. On failure it returns the fallback
// token (Fallback=true, zero Expiry) unless none is configured or the source
// is strict, in which case it returns a *apierr.TokenError.
func (s *Source) Issue(ctx context.Context, sessionID string) (model.Token, error) {
	now := s.now()
	resp, err := s.issuer.IssueToken(ctx, s.chatbotID, sessionID)
	if err != nil {
		tokenErr := &apierr.TokenError{Err: err}
		if s.fallback == "" || s.strict || apierr.IsCanceled(err) {
			return model.Token{}, tokenErr
		}
		s.logger.Warn("token issuance failed, using fallback token", "session", sessionID, logging.Err(err))
		return model.Token{Value: s.fallback, Fallback: true}, nil
	}

	return model.Token{
		Value:  resp.Token,
		Expiry: s.expiry(now, resp),
	}, nil
}

// IssueForChat is Issue with the session identity of chatID.
func (s *Source) IssueForChat(ctx context.Context, chatID string) (model.Token, error) {
	return s.Issue(ctx, SessionID(chatID))
}

// expiry computes the epoch-ms instant after which the token is stale:
// now + expires_in - margin, falling back to the JWT exp claim and then to
// DefaultLifetime.
func (s *Source) expiry(now time.Time, resp *aitutor.TokenResponse) int64 {
	margin := s.margin.Milliseconds()

	if resp.ExpiresIn > 0 {
		return now.UnixMilli() + resp.ExpiresIn*1000 - margin
	}
	if exp, ok := jwtExpiry(resp.Token); ok {
		return exp.UnixMilli() - margin
	}
	return now.Add(DefaultLifetime).UnixMilli() - margin
}

// jwtExpiry reads the exp claim without verifying the signature; the value
// is only used to schedule a refresh, never to trust the token.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
