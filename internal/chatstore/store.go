// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"github.com/scylladb/go-set/strset"

	"github.com/jeranaias/tutorchat/internal/kvstore"
	"github.com/jeranaias/tutorchat/internal/logging"
	"github.com/jeranaias/tutorchat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrChatNotFound is returned for an unknown chat id.
	ErrChatNotFound = errors.New("chat not found")

	// ErrFileNotFound is returned for a file id missing from the registry.
	ErrFileNotFound = errors.New("file not found")

	// ErrNoFileRegistry is returned by file operations in an area without one.
	ErrNoFileRegistry = errors.New("area has no uploaded-file registry")
)

// Issuer mints a session token for a new chat. *token.Source implements it.
type Issuer interface {
	IssueForChat(ctx context.Context, chatID string) (model.Token, error)
}

// =============================================================================
// STORE
// =============================================================================

// state is everything the store persists for one area.
type state struct {
	chats     []model.Chat // sorted by UpdatedAt, most recent first
	currentID string
	files     []model.UploadedFile
}

func (st *state) clone() *state {
	out := &state{
		chats:     make([]model.Chat, len(st.chats)),
		currentID: st.currentID,
		files:     append([]model.UploadedFile(nil), st.files...),
	}
	for i, c := range st.chats {
		out.chats[i] = c.Clone()
	}
	return out
}

func (st *state) index(id string) int {
	for i := range st.chats {
		if st.chats[i].ID == id {
			return i
		}
	}
	return -1
}

func (st *state) sortChats() {
	sort.SliceStable(st.chats, func(i, j int) bool {
		return st.chats[i].UpdatedAt > st.chats[j].UpdatedAt
	})
}

// Store owns the chat collection, the current-chat pointer and the uploaded
// file registry of one area. Every mutation is built on a copy, written in a
// single kvstore batch, and swapped in only after the write succeeds.
type Store struct {
	kv     kvstore.Store
	area   Area
	issuer Issuer
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex
	st *state
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open loads the area from kv. Malformed values are repaired when possible;
// a value that cannot be repaired is set aside under "<key>.corrupt" and the
// area starts empty. When no chats exist a fresh one is created.
func Open(ctx context.Context, kv kvstore.Store, area Area, issuer Issuer, opts ...Option) (*Store, error) {
	s := &Store{
		kv:     kv,
		area:   area,
		issuer: issuer,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	st := &state{chats: []model.Chat{}, files: []model.UploadedFile{}}
	aside := kvstore.NewBatch()
	dirty := false

	if ok, err := loadValue(ctx, s, area.ChatsKey, &st.chats, aside); err != nil {
		return nil, err
	} else if !ok {
		dirty = true
	}
	if area.HasFiles() {
		if ok, err := loadValue(ctx, s, area.FilesKey, &st.files, aside); err != nil {
			return nil, err
		} else if !ok {
			dirty = true
		}
	}
	if st.chats == nil {
		st.chats = []model.Chat{}
	}
	if st.files == nil {
		st.files = []model.UploadedFile{}
	}
	for i := range st.chats {
		st.chats[i].Normalize()
	}
	st.sortChats()

	if area.HasFiles() && pruneDangling(st) {
		dirty = true
	}

	current, ok, err := kv.Get(ctx, area.CurrentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", area.CurrentKey, err)
	}
	if ok && st.index(current) >= 0 {
		st.currentID = current
	} else if len(st.chats) > 0 {
		st.currentID = st.chats[0].ID
		dirty = true
	}

	if len(st.chats) == 0 {
		chat := s.newChat(ctx, model.DefaultChatTitle)
		st.chats = append(st.chats, chat)
		st.currentID = chat.ID
		dirty = true
	}

	s.st = st
	if dirty {
		if err := s.commit(ctx, st, aside); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("chat store opened", "area", area.Name, "chats", len(st.chats), "files", len(st.files))
	return s, nil
}

// loadValue decodes key into dst. Every attempt decodes into a fresh value,
// so dst is either fully decoded or zero. It returns false when the stored
// value had to be repaired or set aside, so the caller rewrites it.
func loadValue[T any](ctx context.Context, s *Store, key string, dst *T, aside *kvstore.Batch) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return true, nil
	}
	if v, err := decode[T](raw); err == nil {
		*dst = v
		return true, nil
	}

	if repaired, err := jsonrepair.JSONRepair(raw); err == nil {
		if v, err := decode[T](repaired); err == nil {
			s.logger.Warn("repaired malformed stored value", "key", key)
			*dst = v
			return false, nil
		}
	}

	s.logger.Error("stored value is unreadable, starting empty", "key", key, "backup", corruptKey(key))
	var zero T
	*dst = zero
	aside.Set(corruptKey(key), raw)
	return false, nil
}

func decode[T any](raw string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(raw), &v)
	return v, err
}

// pruneDangling drops attached ids that are not in the registry.
func pruneDangling(st *state) bool {
	known := strset.New()
	for _, f := range st.files {
		known.Add(f.FileID)
	}

	changed := false
	for i := range st.chats {
		kept := st.chats[i].AttachedFileIDs[:0:0]
		for _, id := range st.chats[i].AttachedFileIDs {
			if known.Has(id) {
				kept = append(kept, id)
			}
		}
		if len(kept) != len(st.chats[i].AttachedFileIDs) {
			st.chats[i].AttachedFileIDs = kept
			changed = true
		}
	}
	return changed
}

// commit writes next in one batch (plus any extra operations) and makes it
// the live state. On failure the live state is left untouched.
func (s *Store) commit(ctx context.Context, next *state, extra *kvstore.Batch) error {
	chats, err := json.Marshal(next.chats)
	if err != nil {
		return fmt.Errorf("failed to encode chats: %w", err)
	}

	b := kvstore.NewBatch()
	if extra != nil {
		b.Merge(extra)
	}
	b.Set(s.area.ChatsKey, string(chats))
	b.Set(s.area.CurrentKey, next.currentID)
	if s.area.HasFiles() {
		files, err := json.Marshal(next.files)
		if err != nil {
			return fmt.Errorf("failed to encode files: %w", err)
		}
		b.Set(s.area.FilesKey, string(files))
	}

	if err := s.kv.Apply(ctx, b); err != nil {
		s.logger.Error("failed to persist chats", "area", s.area.Name, logging.Err(err))
		return fmt.Errorf("failed to persist %s chats: %w", s.area.Name, err)
	}
	s.st = next
	return nil
}

// newChat builds an empty chat with a fresh session token when one can be
// issued. Fallback tokens are not stored.
func (s *Store) newChat(ctx context.Context, title string) model.Chat {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultChatTitle
	}
	now := s.now().UnixMilli()
	chat := model.Chat{
		ID:              uuid.NewString(),
		Title:           title,
		Messages:        []model.Message{},
		CreatedAt:       now,
		UpdatedAt:       now,
		AttachedFileIDs: []string{},
	}

	if s.issuer == nil {
		return chat
	}
	tok, err := s.issuer.IssueForChat(ctx, chat.ID)
	if err != nil {
		s.logger.Warn("new chat has no session token yet", "chat", chat.ID, logging.Err(err))
		return chat
	}
	if !tok.Fallback {
		chat.Token = tok.Value
		chat.TokenExpiry = tok.Expiry
	}
	return chat
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Area returns the area the store was opened for.
func (s *Store) Area() Area {
	return s.area
}

// CreateChat inserts a new chat at the head and makes it current.
func (s *Store) CreateChat(ctx context.Context, title string) (model.Chat, error) {
	// The token round trip happens before the lock is taken.
	chat := s.newChat(ctx, title)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	next.chats = append([]model.Chat{chat}, next.chats...)
	next.currentID = chat.ID
	if err := s.commit(ctx, next, nil); err != nil {
		return model.Chat{}, err
	}
	return chat.Clone(), nil
}

// DeleteChat removes id. When it was current, the most recently updated
// remaining chat becomes current, or a fresh chat is created.
func (s *Store) DeleteChat(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.st.index(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	needFresh := len(s.st.chats) == 1
	s.mu.Unlock()

	var fresh model.Chat
	if needFresh {
		fresh = s.newChat(ctx, model.DefaultChatTitle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	i = next.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	next.chats = append(next.chats[:i], next.chats[i+1:]...)

	if next.currentID == id {
		switch {
		case len(next.chats) > 0:
			// chats stay sorted, so the head is the most recent
			next.currentID = next.chats[0].ID
		case needFresh:
			next.chats = append(next.chats, fresh)
			next.currentID = fresh.ID
		default:
			fresh = s.newChat(ctx, model.DefaultChatTitle)
			next.chats = append(next.chats, fresh)
			next.currentID = fresh.ID
		}
	}
	return s.commit(ctx, next, nil)
}

// RenameChat sets the title of id. UpdatedAt is not changed, so renaming
// does not reorder the history.
func (s *Store) RenameChat(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = model.DefaultChatTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	i := next.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	next.chats[i].Title = title
	return s.commit(ctx, next, nil)
}

// LoadChat makes id the current chat and returns a copy of it.
func (s *Store) LoadChat(ctx context.Context, id string) (model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.st.index(id)
	if i < 0 {
		return model.Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	if s.st.currentID != id {
		next := s.st.clone()
		next.currentID = id
		if err := s.commit(ctx, next, nil); err != nil {
			return model.Chat{}, err
		}
	}
	return s.st.chats[s.st.index(id)].Clone(), nil
}

// SaveChatUpdates merges upd into id, stamps UpdatedAt, re-sorts and
// persists the whole collection. It returns the updated chat.
func (s *Store) SaveChatUpdates(ctx context.Context, id string, upd model.ChatUpdate) (model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(ctx, id, func(c *model.Chat) error {
		upd.Apply(c, s.now())
		return nil
	})
}

// update applies fn to a copy of chat id and commits the result.
func (s *Store) update(ctx context.Context, id string, fn func(*model.Chat) error) (model.Chat, error) {
	next := s.st.clone()
	i := next.index(id)
	if i < 0 {
		return model.Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	if err := fn(&next.chats[i]); err != nil {
		return model.Chat{}, err
	}
	updated := next.chats[i].Clone()
	next.sortChats()
	if err := s.commit(ctx, next, nil); err != nil {
		return model.Chat{}, err
	}
	return updated, nil
}

// =============================================================================
// READS
// =============================================================================

// Chats returns copies of every chat, most recently updated first.
func (s *Store) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Chat, len(s.st.chats))
	for i, c := range s.st.chats {
		out[i] = c.Clone()
	}
	return out
}

// CurrentID returns the current chat id.
func (s *Store) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.currentID
}

// Current returns a copy of the current chat.
func (s *Store) Current() (model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.st.index(s.st.currentID)
	if i < 0 {
		return model.Chat{}, ErrChatNotFound
	}
	return s.st.chats[i].Clone(), nil
}

// Get returns a copy of chat id.
func (s *Store) Get(id string) (model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.st.index(id)
	if i < 0 {
		return model.Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	return s.st.chats[i].Clone(), nil
}

// Resolve finds a chat by exact id, unique id prefix, or 1-based position in
// the history listing.
func (s *Store) Resolve(ref string) (model.Chat, error) {
	ref = strings.TrimSpace(ref)

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.st.index(ref); i >= 0 {
		return s.st.chats[i].Clone(), nil
	}

	if pos, err := strconv.Atoi(ref); err == nil {
		if pos >= 1 && pos <= len(s.st.chats) {
			return s.st.chats[pos-1].Clone(), nil
		}
		return model.Chat{}, fmt.Errorf("%w: no chat at position %d", ErrChatNotFound, pos)
	}

	match := -1
	for i, c := range s.st.chats {
		if ref != "" && strings.HasPrefix(c.ID, ref) {
			if match >= 0 {
				return model.Chat{}, fmt.Errorf("%w: %q is ambiguous", ErrChatNotFound, ref)
			}
			match = i
		}
	}
	if match < 0 {
		return model.Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, ref)
	}
	return s.st.chats[match].Clone(), nil
}
