// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the tagged-quote text stream returned by the
// tutoring API.
//
// The response body is a line-oriented sequence of fragments. Text arrives
// as `0:"escaped text"` segments; other tags carry metadata and are ignored.
// The body grows while the request is in flight, so the decoder is a pure
// function of the bytes received so far and is simply re-run on every
// progress tick.
//
// # Usage
//
//	live := stream.Extract(buffer) // "Hello world" for `0:"Hello "\n0:"world"`
//
// # Decoding Rules
//
//   - Segments are concatenated in order.
//   - An unterminated trailing segment is left out until its closing quote
//     arrives.
//   - \n, \t, \", \' and \\ are unescaped; other escapes are kept as-is.
//   - Runs of three or more newlines collapse to two.
package stream
