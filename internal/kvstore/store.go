// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kvstore provides the durable key/value layer under the chat store.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("kvstore: store closed")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("kvstore: unknown backend")
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a durable string-to-string map. Apply commits every operation of a
// batch or none of them.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Apply commits the batch atomically.
	Apply(ctx context.Context, b *Batch) error

	// Close releases the backend.
	Close() error
}

// =============================================================================
// BATCH
// =============================================================================

type opKind int

const (
	opSet opKind = iota
	opDelete
)

type op struct {
	kind  opKind
	key   string
	value string
}

// Batch collects writes that must land together.
type Batch struct {
	ops []op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Set queues key=value.
func (b *Batch) Set(key, value string) *Batch {
	b.ops = append(b.ops, op{kind: opSet, key: key, value: value})
	return b
}

// Delete queues removal of key.
func (b *Batch) Delete(key string) *Batch {
	b.ops = append(b.ops, op{kind: opDelete, key: key})
	return b
}

// Merge appends the operations of other, which is left unchanged.
func (b *Batch) Merge(other *Batch) *Batch {
	b.ops = append(b.ops, other.ops...)
	return b
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Keys returns the keys touched by the batch in queue order.
func (b *Batch) Keys() []string {
	keys := make([]string, 0, len(b.ops))
	for _, o := range b.ops {
		keys = append(keys, o.key)
	}
	return keys
}

// applyTo replays the batch onto m.
func (b *Batch) applyTo(m map[string]string) {
	for _, o := range b.ops {
		switch o.kind {
		case opSet:
			m[o.key] = o.value
		case opDelete:
			delete(m, o.key)
		}
	}
}

// Set is a convenience wrapper for a single-key write.
func Set(ctx context.Context, s Store, key, value string) error {
	return s.Apply(ctx, NewBatch().Set(key, value))
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and locates a backend.
type Options struct {
	Backend  string
	Dir      string // file and sqlite backends
	RedisURL string // redis backend
	Prefix   string // redis key prefix
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return OpenFile(filepath.Join(opts.Dir, "store.json"))
	case BackendSQLite:
		return OpenSQLite(ctx, filepath.Join(opts.Dir, "store.db"))
	case BackendRedis:
		return OpenRedis(ctx, opts.RedisURL, opts.Prefix)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
