// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apierr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassification(t *testing.T) {
	unauthorized := &ProtocolError{Op: "stream", Status: 401}
	wrapped := fmt.Errorf("turn failed: %w", &RetrievalError{Op: "search", Err: unauthorized})

	if !IsUnauthorized(wrapped) {
		t.Error("IsUnauthorized should see through wrapping")
	}
	if StatusOf(wrapped) != 401 {
		t.Errorf("StatusOf = %d, want 401", StatusOf(wrapped))
	}
	if IsNetwork(wrapped) {
		t.Error("protocol error misclassified as network")
	}

	netErr := &TokenError{Err: &NetworkError{Op: "token", Err: errors.New("connection refused")}}
	if !IsNetwork(netErr) {
		t.Error("IsNetwork should see through TokenError")
	}

	canceled := &NetworkError{Op: "stream", Err: context.Canceled}
	if !IsCanceled(canceled) {
		t.Error("IsCanceled should see context.Canceled")
	}
}

func TestProtocolError_Message(t *testing.T) {
	tests := []struct {
		err  *ProtocolError
		want string
	}{
		{&ProtocolError{Op: "token", Status: 500}, "token: (HTTP 500): Internal Server Error"},
		{&ProtocolError{Op: "token", Status: 400, Code: "bad_bot", Message: "unknown chatbot"}, "token: [bad_bot] (HTTP 400): unknown chatbot"},
		{&ProtocolError{Op: "search", Message: "success=false"}, "search: success=false"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); !strings.Contains(got, tt.want) {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
