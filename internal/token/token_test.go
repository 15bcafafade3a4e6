// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tutorchat/internal/aitutor"
	"github.com/jeranaias/tutorchat/internal/apierr"
	"github.com/jeranaias/tutorchat/internal/logging"
	"github.com/jeranaias/tutorchat/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeIssuer struct {
	mu       sync.Mutex
	calls    int
	sessions []string
	resp     *aitutor.TokenResponse
	err      error
}

func (f *fakeIssuer) IssueToken(_ context.Context, chatbotID, sessionID string) (*aitutor.TokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sessions = append(f.sessions, sessionID)
	if f.err != nil {
		return nil, f.err
	}
	r := *f.resp
	return &r, nil
}

type fakeStore struct {
	updates map[string]model.ChatUpdate
	err     error
}

func (f *fakeStore) SaveChatUpdates(_ context.Context, id string, upd model.ChatUpdate) (model.Chat, error) {
	if f.err != nil {
		return model.Chat{}, f.err
	}
	if f.updates == nil {
		f.updates = map[string]model.ChatUpdate{}
	}
	f.updates[id] = upd
	return model.Chat{ID: id}, nil
}

var fixedNow = time.UnixMilli(1_700_000_000_000)

func clock() time.Time { return fixedNow }

func newSource(iss Issuer, opts ...SourceOption) *Source {
	base := []SourceOption{WithClock(clock), WithLogger(logging.Discard())}
	return NewSource(iss, "bot-1", append(base, opts...)...)
}

// =============================================================================
// SOURCE TESTS
// =============================================================================

func TestSource_ExpiryUsesMargin(t *testing.T) {
	iss := &fakeIssuer{resp: &aitutor.TokenResponse{Success: true, Token: "t1", ExpiresIn: 60}}
	tok, err := newSource(iss).IssueForChat(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, "t1", tok.Value)
	assert.False(t, tok.Fallback)
	assert.Equal(t, fixedNow.UnixMilli()+55_000, tok.Expiry)
	assert.Equal(t, []string{"session_c1"}, iss.sessions)
}

func TestSource_ExpiryFromJWTClaim(t *testing.T) {
	exp := fixedNow.Add(10 * time.Minute)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	iss := &fakeIssuer{resp: &aitutor.TokenResponse{Success: true, Token: signed}}
	tok, err := newSource(iss).Issue(context.Background(), "s")
	require.NoError(t, err)

	assert.Equal(t, exp.Unix()*1000-5_000, tok.Expiry)
}

func TestSource_DefaultLifetime(t *testing.T) {
	iss := &fakeIssuer{resp: &aitutor.TokenResponse{Success: true, Token: "opaque"}}
	tok, err := newSource(iss).Issue(context.Background(), "s")
	require.NoError(t, err)

	assert.Equal(t, fixedNow.UnixMilli()+55_000, tok.Expiry)
}

func TestSource_Fallback(t *testing.T) {
	iss := &fakeIssuer{err: &apierr.NetworkError{Op: "token", Err: errors.New("refused")}}

	tok, err := newSource(iss, WithFallback("static")).Issue(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, model.Token{Value: "static", Fallback: true}, tok)
}

func TestSource_FailureWithoutFallback(t *testing.T) {
	iss := &fakeIssuer{err: errors.New("boom")}

	_, err := newSource(iss).Issue(context.Background(), "s")
	var te *apierr.TokenError
	assert.ErrorAs(t, err, &te)
}

func TestSource_StrictIgnoresFallback(t *testing.T) {
	iss := &fakeIssuer{err: errors.New("boom")}

	_, err := newSource(iss, WithFallback("static"), WithStrict(true)).Issue(context.Background(), "s")
	var te *apierr.TokenError
	assert.ErrorAs(t, err, &te)
}

// =============================================================================
// MANAGER TESTS
// =============================================================================

func TestManager_ReusesValidToken(t *testing.T) {
	iss := &fakeIssuer{resp: &aitutor.TokenResponse{Success: true, Token: "new", ExpiresIn: 60}}
	store := &fakeStore{}
	mgr := NewManager(newSource(iss), store)

	chat := model.Chat{ID: "c1", Token: "cached", TokenExpiry: fixedNow.UnixMilli() + 1}
	tok, err := mgr.EnsureToken(context.Background(), chat)
	require.NoError(t, err)

	assert.Equal(t, "cached", tok)
	assert.Zero(t, iss.calls, "valid cached token must not trigger issuance")
}

func TestManager_IssuesAndPersistsWhenExpired(t *testing.T) {
	iss := &fakeIssuer{resp: &aitutor.TokenResponse{Success: true, Token: "new", ExpiresIn: 60}}
	store := &fakeStore{}
	mgr := NewManager(newSource(iss), store)

	// Expiry exactly at now counts as expired.
	chat := model.Chat{ID: "c1", Token: "old", TokenExpiry: fixedNow.UnixMilli()}
	tok, err := mgr.EnsureToken(context.Background(), chat)
	require.NoError(t, err)

	assert.Equal(t, "new", tok)
	require.Contains(t, store.updates, "c1")
	upd := store.updates["c1"]
	assert.Equal(t, "new", *upd.Token)
	assert.Equal(t, fixedNow.UnixMilli()+55_000, *upd.TokenExpiry)
}

func TestManager_RefreshIgnoresCache(t *testing.T) {
	iss := &fakeIssuer{resp: &aitutor.TokenResponse{Success: true, Token: "fresh", ExpiresIn: 60}}
	mgr := NewManager(newSource(iss), &fakeStore{})

	chat := model.Chat{ID: "c1", Token: "cached", TokenExpiry: fixedNow.UnixMilli() + 60_000}
	tok, err := mgr.Refresh(context.Background(), chat)
	require.NoError(t, err)

	assert.Equal(t, "fresh", tok)
	assert.Equal(t, 1, iss.calls)
}

func TestManager_FallbackNotPersisted(t *testing.T) {
	iss := &fakeIssuer{err: errors.New("down")}
	store := &fakeStore{}
	mgr := NewManager(newSource(iss, WithFallback("static")), store)

	tok, err := mgr.EnsureToken(context.Background(), model.Chat{ID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, "static", tok)
	assert.Empty(t, store.updates)
}

func TestManager_PersistFailureStillReturnsToken(t *testing.T) {
	iss := &fakeIssuer{resp: &aitutor.TokenResponse{Success: true, Token: "new", ExpiresIn: 60}}
	mgr := NewManager(newSource(iss), &fakeStore{err: errors.New("disk full")})

	tok, err := mgr.EnsureToken(context.Background(), model.Chat{ID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "new", tok)
}
