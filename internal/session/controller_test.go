// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tutorchat/internal/aitutor"
	"github.com/jeranaias/tutorchat/internal/apierr"
	"github.com/jeranaias/tutorchat/internal/chatstore"
	"github.com/jeranaias/tutorchat/internal/kvstore"
	"github.com/jeranaias/tutorchat/internal/logging"
	"github.com/jeranaias/tutorchat/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeTokens struct {
	ensure    atomic.Int32
	refreshes atomic.Int32
	err       error
}

func (f *fakeTokens) EnsureToken(context.Context, model.Chat) (string, error) {
	f.ensure.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "tok-1", nil
}

func (f *fakeTokens) Refresh(context.Context, model.Chat) (string, error) {
	n := f.refreshes.Add(1)
	return "tok-refreshed-" + string(rune('0'+n)), nil
}

// script is one scripted streaming call.
type script func(ctx context.Context, events chan<- aitutor.Event)

type fakeStreamer struct {
	mu      sync.Mutex
	scripts []script
	tokens  []string
	sent    [][]model.APIMessage
}

func (f *fakeStreamer) Stream(ctx context.Context, token string, messages []model.APIMessage) <-chan aitutor.Event {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.sent = append(f.sent, append([]model.APIMessage(nil), messages...))
	sc := f.scripts[0]
	if len(f.scripts) > 1 {
		f.scripts = f.scripts[1:]
	}
	f.mu.Unlock()

	ch := make(chan aitutor.Event, 16)
	go func() {
		defer close(ch)
		sc(ctx, ch)
	}()
	return ch
}

func reply(chunks ...string) script {
	return func(_ context.Context, ch chan<- aitutor.Event) {
		buf := ""
		for _, c := range chunks {
			buf += c
			ch <- aitutor.Event{Kind: aitutor.EventProgress, Buffer: buf, Status: 200}
		}
		ch <- aitutor.Event{Kind: aitutor.EventCompleted, Buffer: buf, Status: 200}
	}
}

func status(code int) script {
	return func(_ context.Context, ch chan<- aitutor.Event) {
		ch <- aitutor.Event{Kind: aitutor.EventFailed, Status: code,
			Err: &apierr.ProtocolError{Op: "stream", Status: code}}
	}
}

func networkDown() script {
	return func(_ context.Context, ch chan<- aitutor.Event) {
		ch <- aitutor.Event{Kind: aitutor.EventFailed,
			Err: &apierr.NetworkError{Op: "stream", Err: errors.New("connection refused")}}
	}
}

// hang emits one chunk and blocks until the request is cancelled.
func hang(started chan<- struct{}) script {
	return func(ctx context.Context, ch chan<- aitutor.Event) {
		ch <- aitutor.Event{Kind: aitutor.EventProgress, Buffer: `0:"partial"`, Status: 200}
		close(started)
		<-ctx.Done()
		ch <- aitutor.Event{Kind: aitutor.EventFailed, Err: &apierr.NetworkError{Op: "stream", Err: ctx.Err()}}
	}
}

type fakeAugmenter struct {
	err   error
	query string
	files []string
}

func (f *fakeAugmenter) Augment(_ context.Context, query string, fileIDs []string) (string, error) {
	f.query = query
	f.files = fileIDs
	if f.err != nil {
		return "", f.err
	}
	return "CONTEXT + " + query, nil
}

type harness struct {
	store    *chatstore.Store
	tokens   *fakeTokens
	streamer *fakeStreamer
	ctrl     *Controller
}

func newHarness(t *testing.T, area chatstore.Area, scripts []script, opts ...Option) *harness {
	t.Helper()
	store, err := chatstore.Open(context.Background(), kvstore.NewMemory(), area, nil,
		chatstore.WithLogger(logging.Discard()))
	require.NoError(t, err)

	h := &harness{
		store:    store,
		tokens:   &fakeTokens{},
		streamer: &fakeStreamer{scripts: scripts},
	}
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	h.ctrl = NewController(store, h.tokens, h.streamer, opts...)
	return h
}

func (h *harness) current(t *testing.T) model.Chat {
	t.Helper()
	c, err := h.store.Current()
	require.NoError(t, err)
	return c
}

func collect(t *testing.T, turn *Turn) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-turn.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("turn did not finish")
		}
	}
}

// =============================================================================
// SUCCESS PATH
// =============================================================================

func TestSubmit_StreamsAndPersists(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{
		reply(`0:"Photosynthesis `, `converts light"`, `0:" into energy"`),
	})

	turn, err := h.ctrl.Submit(context.Background(), "  what is photosynthesis  ")
	require.NoError(t, err)

	events := collect(t, turn)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventCompleted, last.Kind)
	assert.Equal(t, "Photosynthesis converts light into energy", last.Message.Content)
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, EventProgress, ev.Kind)
	}

	chat := h.current(t)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, model.RoleUser, chat.Messages[0].Role)
	assert.Equal(t, "what is photosynthesis", chat.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, chat.Messages[1].Role)
	assert.Equal(t, "Photosynthesis converts light...", chat.Title)

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Empty(t, h.ctrl.Live())
}

func TestSubmit_KeepsChosenTitle(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{reply(`0:"One two"`)})
	ctx := context.Background()

	_, err := h.ctrl.Run(ctx, "first", nil)
	require.NoError(t, err)
	require.NoError(t, h.store.RenameChat(ctx, h.current(t).ID, "Mine"))

	ev, err := h.ctrl.Run(ctx, "second", nil)
	require.NoError(t, err)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "Mine", h.current(t).Title)
}

func TestSubmit_TitleAfterFailedFirstTurn(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{status(500), reply(`0:"Mitochondria make ATP for cells"`)})
	ctx := context.Background()

	ev, err := h.ctrl.Run(ctx, "first", nil)
	require.NoError(t, err)
	require.Equal(t, EventFailed, ev.Kind)
	assert.Equal(t, model.DefaultChatTitle, h.current(t).Title)

	ev, err = h.ctrl.Run(ctx, "second", nil)
	require.NoError(t, err)
	require.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "Mitochondria make ATP...", h.current(t).Title)
}

func TestSubmit_SendsFullHistory(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{reply(`0:"ok"`)})
	ctx := context.Background()

	_, err := h.ctrl.Run(ctx, "one", nil)
	require.NoError(t, err)
	_, err = h.ctrl.Run(ctx, "two", nil)
	require.NoError(t, err)

	require.Len(t, h.streamer.sent, 2)
	assert.Equal(t, []model.APIMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "two"},
	}, h.streamer.sent[1])
}

func TestSubmit_UserMessageDurableBeforeReturn(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, chatstore.AreaStreaming, []script{hang(started)})

	turn, err := h.ctrl.Submit(context.Background(), "hello")
	require.NoError(t, err)

	chat := h.current(t)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, "hello", chat.Messages[0].Content)

	<-started
	h.ctrl.Cancel()
	turn.Wait()
}

// =============================================================================
// INPUT GUARDS
// =============================================================================

func TestSubmit_EmptyInput(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{reply()})
	_, err := h.ctrl.Submit(context.Background(), " \n\t")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, h.current(t).Messages)
}

func TestSubmit_BusyRejected(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, chatstore.AreaStreaming, []script{hang(started)})
	ctx := context.Background()

	turn, err := h.ctrl.Submit(ctx, "one")
	require.NoError(t, err)
	<-started

	_, err = h.ctrl.Submit(ctx, "two")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Len(t, h.current(t).Messages, 1)

	h.ctrl.Cancel()
	turn.Wait()
}

// =============================================================================
// FAILURES
// =============================================================================

func TestSubmit_StatusFailurePersistsApology(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{status(500)})

	ev, err := h.ctrl.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, EventFailed, ev.Kind)
	assert.Equal(t, ApologyStatus, ev.Message.Content)
	assert.Equal(t, 500, apierr.StatusOf(ev.Err))

	chat := h.current(t)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, ApologyStatus, chat.Messages[1].Content)
	assert.Equal(t, model.DefaultChatTitle, chat.Title)
	assert.EqualValues(t, 1, h.tokens.refreshes.Load())
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestSubmit_NetworkFailurePersistsApology(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{networkDown()})

	ev, err := h.ctrl.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, EventFailed, ev.Kind)
	assert.Equal(t, ApologyNetwork, h.current(t).Messages[1].Content)
}

func TestSubmit_TokenFailure(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{reply(`0:"never"`)})
	h.tokens.err = &apierr.TokenError{Err: &apierr.NetworkError{Op: "token", Err: errors.New("dns")}}

	ev, err := h.ctrl.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, EventFailed, ev.Kind)
	assert.Equal(t, ApologyNetwork, ev.Message.Content)
	assert.Empty(t, h.streamer.sent)
}

func TestSubmit_StrictTokenRejection(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{reply(`0:"never"`)})
	h.tokens.err = &apierr.TokenError{Err: &apierr.ProtocolError{Op: "token", Status: 200, Message: "response did not contain a token"}}

	ev, err := h.ctrl.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, EventFailed, ev.Kind)
	assert.Equal(t, ApologyStatus, ev.Message.Content)
	assert.Equal(t, ApologyStatus, h.current(t).Messages[1].Content)
}

func TestSubmit_UnauthorizedRetriesOnce(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{status(401), reply(`0:"Recovered"`)})

	ev, err := h.ctrl.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "Recovered", ev.Message.Content)
	assert.Equal(t, []string{"tok-1", "tok-refreshed-1"}, h.streamer.tokens)
	assert.EqualValues(t, 1, h.tokens.refreshes.Load())
}

func TestSubmit_UnauthorizedTwiceFails(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{status(401)})

	ev, err := h.ctrl.Run(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, EventFailed, ev.Kind)
	assert.True(t, apierr.IsUnauthorized(ev.Err))
	assert.Len(t, h.streamer.tokens, 2)
	// one refresh for the retry, one best-effort after the failure
	assert.EqualValues(t, 2, h.tokens.refreshes.Load())
}

func TestApology(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"status", &apierr.ProtocolError{Status: 503}, ApologyStatus},
		{"network", &apierr.NetworkError{Err: errors.New("reset")}, ApologyNetwork},
		{"oversized 200", &apierr.ProtocolError{Status: 200, Message: "too big"}, ApologyProcessing},
		{"processing", &processingError{errors.New("disk")}, ApologyProcessing},
		{"token rejected with 200", &apierr.TokenError{Err: &apierr.ProtocolError{Op: "token", Status: 200, Message: "no token"}}, ApologyStatus},
		{"token network", &apierr.TokenError{Err: &apierr.NetworkError{Op: "token", Err: errors.New("dns")}}, ApologyNetwork},
		{"other", errors.New("boom"), ApologyStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Apology(tt.err))
		})
	}
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel_PersistsNothing(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, chatstore.AreaStreaming, []script{hang(started)})

	turn, err := h.ctrl.Submit(context.Background(), "hi")
	require.NoError(t, err)
	<-started
	first := <-turn.Events()
	assert.Equal(t, EventProgress, first.Kind)
	assert.Equal(t, "partial", h.ctrl.Live())

	assert.True(t, h.ctrl.Cancel())
	assert.Equal(t, StateIdle, h.ctrl.State())

	ev := turn.Wait()
	assert.Equal(t, EventCancelled, ev.Kind)
	assert.Len(t, h.current(t).Messages, 1)
	assert.Zero(t, h.tokens.refreshes.Load())
	assert.False(t, h.ctrl.Cancel())
}

func TestCancel_StaleTurnCannotTouchNewTurn(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, chatstore.AreaStreaming, []script{hang(started), reply(`0:"fresh"`)})
	ctx := context.Background()

	old, err := h.ctrl.Submit(ctx, "one")
	require.NoError(t, err)
	<-started
	h.ctrl.Cancel()

	ev, err := h.ctrl.Run(ctx, "two", nil)
	require.NoError(t, err)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, EventCancelled, old.Wait().Kind)

	msgs := h.current(t).Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "fresh", msgs[2].Content)
}

func TestCancel_ParentContext(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, chatstore.AreaStreaming, []script{hang(started)})
	ctx, cancel := context.WithCancel(context.Background())

	turn, err := h.ctrl.Submit(ctx, "hi")
	require.NoError(t, err)
	<-started
	cancel()

	assert.Equal(t, EventCancelled, turn.Wait().Kind)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

// =============================================================================
// AUGMENTATION
// =============================================================================

func ragHarness(t *testing.T, aug *fakeAugmenter, attach bool) *harness {
	t.Helper()
	h := newHarness(t, chatstore.AreaRAG, []script{reply(`0:"answer"`)}, WithAugmenter(aug))
	ctx := context.Background()
	require.NoError(t, h.store.AddUploadedFile(ctx, model.UploadedFile{FileID: "f1", FileName: "bio.pdf"}))
	if attach {
		_, err := h.store.AttachFile(ctx, h.store.CurrentID(), "f1")
		require.NoError(t, err)
	}
	return h
}

func TestAugment_ReplacesOnlyOutboundQuestion(t *testing.T) {
	aug := &fakeAugmenter{}
	h := ragHarness(t, aug, true)

	_, err := h.ctrl.Run(context.Background(), "what is a cell", nil)
	require.NoError(t, err)

	assert.Equal(t, "what is a cell", aug.query)
	assert.Equal(t, []string{"f1"}, aug.files)
	assert.Equal(t, "CONTEXT + what is a cell", h.streamer.sent[0][0].Content)
	assert.Equal(t, "what is a cell", h.current(t).Messages[0].Content)
}

func TestAugment_SkippedWithoutAttachments(t *testing.T) {
	aug := &fakeAugmenter{}
	h := ragHarness(t, aug, false)

	_, err := h.ctrl.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, aug.query)
	assert.Equal(t, "q", h.streamer.sent[0][0].Content)
}

func TestAugment_FailureIsIgnored(t *testing.T) {
	aug := &fakeAugmenter{err: errors.New("rag down")}
	h := ragHarness(t, aug, true)

	ev, err := h.ctrl.Run(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, EventCompleted, ev.Kind)
	assert.Equal(t, "q", h.streamer.sent[0][0].Content)
}

// =============================================================================
// LIVE UPDATES
// =============================================================================

func TestRun_ProgressIsMonotonic(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming, []script{reply(`0:"a`, `b"0:"c`, `d"`)})

	var seen []string
	ev, err := h.ctrl.Run(context.Background(), "hi", func(s string) { seen = append(seen, s) })
	require.NoError(t, err)
	assert.Equal(t, "abcd", ev.Message.Content)
	for i := 1; i < len(seen); i++ {
		assert.True(t, len(seen[i]) >= len(seen[i-1]))
	}
}

func TestLiveRate_FinalEventNeverThrottled(t *testing.T) {
	h := newHarness(t, chatstore.AreaStreaming,
		[]script{reply(`0:"a"`, `0:"b"`, `0:"c"`, `0:"d"`)}, WithLiveRate(0.001))

	turn, err := h.ctrl.Submit(context.Background(), "hi")
	require.NoError(t, err)
	events := collect(t, turn)

	progress := 0
	for _, ev := range events {
		if ev.Kind == EventProgress {
			progress++
		}
	}
	assert.LessOrEqual(t, progress, 1)
	assert.Equal(t, EventCompleted, events[len(events)-1].Kind)
	assert.Equal(t, "abcd", events[len(events)-1].Message.Content)
}
