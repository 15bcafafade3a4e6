// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"

	"github.com/jeranaias/tutorchat/internal/model"
)

// =============================================================================
// STATE
// =============================================================================

// State is the controller's position in the turn lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind classifies a turn Event.
type EventKind int

const (
	// EventProgress carries the decoded text received so far.
	EventProgress EventKind = iota
	// EventCompleted carries the persisted assistant message.
	EventCompleted
	// EventFailed carries the persisted apology message and the cause.
	EventFailed
	// EventCancelled ends a turn the user aborted. Nothing was persisted.
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Terminal reports whether k ends a turn.
func (k EventKind) Terminal() bool {
	return k != EventProgress
}

// Event is one step of a turn.
type Event struct {
	Kind    EventKind
	Text    string        // EventProgress: full decoded text so far
	Message model.Message // EventCompleted, EventFailed
	Err     error         // EventFailed
}

// =============================================================================
// TURN
// =============================================================================

// eventBuffer bounds queued progress events. One slot is always kept free
// for the terminal event.
const eventBuffer = 64

// Turn is one submitted message and its reply.
type Turn struct {
	ID     uint64
	ChatID string
	Input  string

	events chan Event
	done   chan struct{}
	result Event
	cancel context.CancelFunc
}

func newTurn(id uint64, chatID, input string, cancel context.CancelFunc) *Turn {
	return &Turn{
		ID:     id,
		ChatID: chatID,
		Input:  input,
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Events yields progress events followed by exactly one terminal event,
// then closes. Progress events are dropped rather than blocking when the
// consumer falls behind; each one carries the full text so none is needed.
func (t *Turn) Events() <-chan Event {
	return t.events
}

// Wait blocks until the turn ends and returns its terminal event.
func (t *Turn) Wait() Event {
	<-t.done
	return t.result
}

// Done is closed when the turn has ended.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// progress queues ev unless only the terminal slot is left. Only the turn's
// goroutine sends, so the length check cannot race another sender.
func (t *Turn) progress(ev Event) {
	if len(t.events) < cap(t.events)-1 {
		t.events <- ev
	}
}

// finish delivers the terminal event and closes the turn.
func (t *Turn) finish(ev Event) {
	t.result = ev
	t.events <- ev
	close(t.events)
	t.cancel()
	close(t.done)
}
