// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// confirmFunc asks a yes/no question. Tests replace it.
var confirmFunc = func(question string) (bool, error) {
	confirm := false
	err := survey.AskOne(&survey.Confirm{Message: question}, &confirm)
	if err == terminal.InterruptErr {
		return false, nil
	}
	return confirm, err
}

// Confirm gates a destructive action. assumeYes (--yes) skips the prompt;
// without a terminal the action is refused.
func Confirm(action string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !IsTTY() && !confirmForced {
		return false, &TTYRequiredError{Operation: "confirm " + action}
	}
	return confirmFunc("Are you sure you want to " + action + "?")
}

// confirmForced lets tests drive confirmFunc without a terminal.
var confirmForced bool
