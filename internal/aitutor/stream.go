// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package aitutor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jeranaias/tutorchat/internal/apierr"
	"github.com/jeranaias/tutorchat/internal/model"
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// readChunkSize is the body read granularity; each read yields one progress
// event.
const readChunkSize = 4 * 1024

// EventKind classifies a stream Event.
type EventKind int

const (
	// EventProgress carries the cumulative body received so far.
	EventProgress EventKind = iota
	// EventCompleted is the final event of a 2xx response.
	EventCompleted
	// EventFailed is the final event of any failed request.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one step of a streamed request. Buffer is always the full body
// received so far, never a delta.
type Event struct {
	Kind   EventKind
	Buffer string
	Status int
	Err    error
}

// StreamRequest is the body of POST /chat/{token}/stream.
type StreamRequest struct {
	Messages []model.APIMessage `json:"messages"`
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// Stream posts messages to the streaming endpoint and returns a channel of
// events. The channel yields zero or more EventProgress values followed by
// exactly one EventCompleted or EventFailed, then closes. Cancelling ctx
// aborts the request and closes the connection.
func (c *Client) Stream(ctx context.Context, token string, messages []model.APIMessage) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		c.runStream(ctx, token, messages, events)
	}()

	return events
}

func (c *Client) runStream(ctx context.Context, token string, messages []model.APIMessage, events chan<- Event) {
	const op = "stream"

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(status int, buf string, err error) {
		// The consumer may already have stopped listening after a cancel.
		select {
		case events <- Event{Kind: EventFailed, Status: status, Buffer: buf, Err: err}:
		default:
			send(Event{Kind: EventFailed, Status: status, Buffer: buf, Err: err})
		}
	}

	if !c.IsConfigured() {
		fail(0, "", ErrNotConfigured)
		return
	}

	body, err := json.Marshal(StreamRequest{Messages: messages})
	if err != nil {
		fail(0, "", fmt.Errorf("failed to marshal request: %w", err))
		return
	}

	endpoint := c.baseURL + "/chat/" + url.PathEscape(token) + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		fail(0, "", fmt.Errorf("failed to create request: %w", err))
		return
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Cache-Control", "no-cache")

	c.logRequest(req, op)
	start := time.Now()
	resp, err := c.streamClient.Do(req)
	if err != nil {
		fail(0, "", &apierr.NetworkError{Op: op, Err: err})
		return
	}
	defer resp.Body.Close()
	c.logResponse(op, resp, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var envelope struct {
			Error *apiError `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		fail(resp.StatusCode, string(raw), protocolError(op, resp.StatusCode, envelope.Error, raw))
		return
	}

	var acc bytes.Buffer
	chunk := make([]byte, readChunkSize)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			if int64(acc.Len()+n) > c.maxResponseSize {
				fail(resp.StatusCode, acc.String(), &apierr.ProtocolError{
					Op:      op,
					Status:  resp.StatusCode,
					Message: fmt.Sprintf("response exceeds %d bytes", c.maxResponseSize),
				})
				return
			}
			acc.Write(chunk[:n])
			if !send(Event{Kind: EventProgress, Buffer: acc.String(), Status: resp.StatusCode}) {
				fail(resp.StatusCode, acc.String(), &apierr.NetworkError{Op: op, Err: ctx.Err()})
				return
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			fail(resp.StatusCode, acc.String(), &apierr.NetworkError{Op: op, Err: readErr})
			return
		}
	}

	c.logger.Debug("stream complete", "bytes", acc.Len(), "duration", time.Since(start).Round(time.Millisecond))
	send(Event{Kind: EventCompleted, Buffer: acc.String(), Status: resp.StatusCode})
}
