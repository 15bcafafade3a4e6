// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs chat turns against the streaming endpoint.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/tutorchat/internal/aitutor"
	"github.com/jeranaias/tutorchat/internal/apierr"
	"github.com/jeranaias/tutorchat/internal/logging"
	"github.com/jeranaias/tutorchat/internal/model"
	"github.com/jeranaias/tutorchat/internal/stream"
)

// Apology texts persisted as the assistant reply of a failed turn.
const (
	ApologyStatus     = "Sorry, an error occurred. Please try again."
	ApologyNetwork    = "Sorry, a network error occurred. Please check your connection and try again."
	ApologyProcessing = "Sorry, an error occurred while processing the response."
)

var (
	// ErrBusy is returned by Submit while a turn is in flight.
	ErrBusy = errors.New("a reply is already streaming")

	// ErrEmptyInput is returned by Submit for blank input.
	ErrEmptyInput = errors.New("message is empty")
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Store is the chat persistence the controller needs. *chatstore.Store
// implements it.
type Store interface {
	Current() (model.Chat, error)
	SaveChatUpdates(ctx context.Context, id string, upd model.ChatUpdate) (model.Chat, error)
}

// Tokens supplies session tokens. *token.Manager implements it.
type Tokens interface {
	EnsureToken(ctx context.Context, chat model.Chat) (string, error)
	Refresh(ctx context.Context, chat model.Chat) (string, error)
}

// Streamer opens the streaming call. *aitutor.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, token string, messages []model.APIMessage) <-chan aitutor.Event
}

// Augmenter rewrites a question with retrieved context.
// retrieval.Augmenter implements it.
type Augmenter interface {
	Augment(ctx context.Context, query string, fileIDs []string) (string, error)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller runs one turn at a time for the store's current chat.
type Controller struct {
	store     Store
	tokens    Tokens
	streamer  Streamer
	augmenter Augmenter
	limiter   *rate.Limiter
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	state  State
	seq    uint64
	active *Turn
	live   string
}

// Option configures a Controller.
type Option func(*Controller)

// WithAugmenter enables retrieval augmentation for chats with attached files.
func WithAugmenter(a Augmenter) Option {
	return func(c *Controller) { c.augmenter = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLiveRate caps progress events at hz per second. The terminal event is
// never throttled. Zero disables the cap.
func WithLiveRate(hz float64) Option {
	return func(c *Controller) {
		if hz > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(hz), 1)
		}
	}
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController wires a controller.
func NewController(store Store, tokens Tokens, streamer Streamer, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		tokens:   tokens,
		streamer: streamer,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Live returns the decoded reply of the in-flight turn, or "".
func (c *Controller) Live() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Submit persists input as a user message of the current chat and starts
// the reply on a new goroutine. The user message is durable before Submit
// returns.
func (c *Controller) Submit(ctx context.Context, input string) (*Turn, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	c.state = StateSending
	c.seq++
	id := c.seq
	c.mu.Unlock()

	chat, err := c.store.Current()
	if err == nil {
		chat, err = c.store.SaveChatUpdates(ctx, chat.ID, model.ChatUpdate{
			Append: []model.Message{model.NewUserMessage(input, c.now())},
		})
	}
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return nil, err
	}

	turnCtx, cancel := context.WithCancel(ctx)
	turn := newTurn(id, chat.ID, input, cancel)

	c.mu.Lock()
	c.active = turn
	c.live = ""
	c.mu.Unlock()

	c.logger.Debug("turn started", "turn", id, "chat", chat.ID)
	go c.run(turnCtx, turn, chat)
	return turn, nil
}

// Run is the blocking form of Submit. onProgress, when set, receives each
// progress text.
func (c *Controller) Run(ctx context.Context, input string, onProgress func(string)) (Event, error) {
	turn, err := c.Submit(ctx, input)
	if err != nil {
		return Event{}, err
	}
	for ev := range turn.Events() {
		if ev.Kind == EventProgress && onProgress != nil {
			onProgress(ev.Text)
		}
	}
	return turn.Wait(), nil
}

// Cancel aborts the in-flight turn. The controller is Idle when Cancel
// returns; the aborted turn still delivers EventCancelled on its own channel.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	turn := c.active
	if turn == nil {
		c.mu.Unlock()
		return false
	}
	c.detach(turn, StateCancelled)
	c.mu.Unlock()

	turn.cancel()
	c.logger.Debug("turn cancelled", "turn", turn.ID)
	return true
}

// detach releases turn. Callers hold c.mu.
func (c *Controller) detach(turn *Turn, final State) {
	if c.active != turn {
		return
	}
	c.logger.Debug("turn finished", "turn", turn.ID, "state", final)
	c.active = nil
	c.live = ""
	c.state = StateIdle
}

func (c *Controller) isActive(turn *Turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == turn
}

// =============================================================================
// TURN EXECUTION
// =============================================================================

func (c *Controller) run(ctx context.Context, turn *Turn, chat model.Chat) {
	buf, err := c.exchange(ctx, turn, chat)

	if ctx.Err() != nil || !c.isActive(turn) {
		c.end(turn, StateCancelled, Event{Kind: EventCancelled})
		return
	}
	if err != nil {
		c.fail(ctx, turn, chat, err)
		return
	}

	text := stream.Extract(buf)
	msg := model.NewAssistantMessage(text, c.now())
	upd := model.ChatUpdate{Append: []model.Message{msg}}
	if chat.HasDefaultTitle() {
		upd.Title = model.StringPtr(model.DeriveTitle(text))
	}

	if err := c.persist(ctx, turn, chat.ID, upd); err != nil {
		if errors.Is(err, errStale) {
			c.end(turn, StateCancelled, Event{Kind: EventCancelled})
			return
		}
		c.fail(ctx, turn, chat, &processingError{err})
		return
	}
	c.end(turn, StateCompleted, Event{Kind: EventCompleted, Message: msg})
}

// exchange obtains a token, augments the question when files are attached
// and streams the reply. A 401 refreshes the token and retries once.
func (c *Controller) exchange(ctx context.Context, turn *Turn, chat model.Chat) (string, error) {
	tok, err := c.tokens.EnsureToken(ctx, chat)
	if err != nil {
		return "", err
	}

	messages := chat.APIMessages()
	if c.augmenter != nil && len(chat.AttachedFileIDs) > 0 && len(messages) > 0 {
		augmented, err := c.augmenter.Augment(ctx, turn.Input, chat.AttachedFileIDs)
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			c.logger.Warn("retrieval failed, sending question without context", "chat", chat.ID, logging.Err(err))
		default:
			// only the outbound copy changes, the log keeps the user's text
			messages[len(messages)-1].Content = augmented
		}
	}

	c.setState(turn, StateStreaming)
	buf, err := c.stream(ctx, turn, tok, messages)
	if err == nil || !apierr.IsUnauthorized(err) || ctx.Err() != nil {
		return buf, err
	}

	c.logger.Info("session token rejected, refreshing", "chat", chat.ID)
	tok, rerr := c.tokens.Refresh(ctx, chat)
	if rerr != nil {
		return "", rerr
	}
	return c.stream(ctx, turn, tok, messages)
}

func (c *Controller) stream(ctx context.Context, turn *Turn, tok string, messages []model.APIMessage) (string, error) {
	for ev := range c.streamer.Stream(ctx, tok, messages) {
		switch ev.Kind {
		case aitutor.EventProgress:
			c.progress(turn, ev.Buffer)
		case aitutor.EventCompleted:
			return ev.Buffer, nil
		case aitutor.EventFailed:
			if ev.Err == nil {
				ev.Err = &apierr.ProtocolError{Op: "stream", Status: ev.Status}
			}
			return ev.Buffer, ev.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", &apierr.NetworkError{Op: "stream", Err: io.ErrUnexpectedEOF}
}

// progress publishes the decoded buffer as live content.
func (c *Controller) progress(turn *Turn, buf string) {
	text := stream.Extract(buf)

	c.mu.Lock()
	if c.active != turn {
		c.mu.Unlock()
		return
	}
	c.live = text
	c.mu.Unlock()

	if c.limiter != nil && !c.limiter.Allow() {
		return
	}
	turn.progress(Event{Kind: EventProgress, Text: text})
}

func (c *Controller) setState(turn *Turn, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == turn {
		c.state = s
	}
}

// fail persists the apology for err and refreshes the token once.
func (c *Controller) fail(ctx context.Context, turn *Turn, chat model.Chat, err error) {
	c.logger.Warn("turn failed", "turn", turn.ID, "chat", chat.ID, logging.Err(err))

	msg := model.NewAssistantMessage(Apology(err), c.now())
	if perr := c.persist(ctx, turn, chat.ID, model.ChatUpdate{Append: []model.Message{msg}}); perr != nil {
		if errors.Is(perr, errStale) {
			c.end(turn, StateCancelled, Event{Kind: EventCancelled})
			return
		}
		c.logger.Error("failed to save apology", "chat", chat.ID, logging.Err(perr))
	}

	if _, rerr := c.tokens.Refresh(ctx, chat); rerr != nil {
		c.logger.Warn("token refresh after failure did not succeed", "chat", chat.ID, logging.Err(rerr))
	}

	c.end(turn, StateFailed, Event{Kind: EventFailed, Message: msg, Err: err})
}

var errStale = errors.New("turn is no longer active")

// persist writes upd while turn is still the active one, so a cancelled
// turn can never append to the log.
func (c *Controller) persist(ctx context.Context, turn *Turn, chatID string, upd model.ChatUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != turn {
		return errStale
	}
	_, err := c.store.SaveChatUpdates(context.WithoutCancel(ctx), chatID, upd)
	return err
}

func (c *Controller) end(turn *Turn, final State, ev Event) {
	c.mu.Lock()
	if c.active == turn {
		c.state = final
	}
	c.detach(turn, final)
	c.mu.Unlock()
	turn.finish(ev)
}

// =============================================================================
// FAILURE CLASSIFICATION
// =============================================================================

// processingError marks a reply that arrived but could not be handled.
type processingError struct{ err error }

func (e *processingError) Error() string { return "failed to process reply: " + e.err.Error() }
func (e *processingError) Unwrap() error { return e.err }

// Apology returns the assistant text persisted for a failed turn.
func Apology(err error) string {
	var pe *processingError
	if errors.As(err, &pe) {
		return ApologyProcessing
	}
	if apierr.IsNetwork(err) {
		return ApologyNetwork
	}
	// Token failures happen before any reply body is read.
	var te *apierr.TokenError
	if errors.As(err, &te) {
		return ApologyStatus
	}
	// A 2xx that still failed (oversized body) is a processing failure.
	if s := apierr.StatusOf(err); s >= http.StatusOK && s < http.StatusMultipleChoices {
		return ApologyProcessing
	}
	return ApologyStatus
}
