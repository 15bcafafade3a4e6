// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TERMINAL CAPABILITIES
// =============================================================================

const (
	// DefaultTerminalWidth is used when stdout is not a terminal.
	DefaultTerminalWidth = 80

	// MinTerminalWidth keeps tables readable on very narrow terminals.
	MinTerminalWidth = 40
)

// IsTTY reports whether stdin is interactive. Prompts need it.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY reports whether replies go to a terminal rather than a pipe.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// GetTerminalWidth returns the stdout width clamped to MinTerminalWidth.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	switch {
	case err != nil || width <= 0:
		return DefaultTerminalWidth
	case width < MinTerminalWidth:
		return MinTerminalWidth
	default:
		return width
	}
}

var colorProfile = sync.OnceValue(func() termenv.Profile {
	// https://no-color.org/ wins over FORCE_COLOR
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	if os.Getenv("FORCE_COLOR") == "" && !IsStdoutTTY() {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
})

// GetColorProfile returns the profile styles render with. Piped output and
// NO_COLOR get plain text.
func GetColorProfile() termenv.Profile {
	return colorProfile()
}

// ColorsEnabled reports whether styled output is in effect.
func ColorsEnabled() bool {
	return GetColorProfile() != termenv.Ascii
}

// =============================================================================
// ERRORS
// =============================================================================

// TTYRequiredError is returned when a confirmation is needed but stdin is
// not a terminal.
type TTYRequiredError struct {
	Operation string
}

func (e *TTYRequiredError) Error() string {
	if e.Operation == "" {
		return "stdin is not a terminal"
	}
	return "stdin is not a terminal; cannot " + e.Operation + " without --yes"
}
