// tutorchat - a terminal client for the AI tutoring chat service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import "github.com/jeranaias/tutorchat/internal/cli"

func main() {
	cli.Execute()
}
