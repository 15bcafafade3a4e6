// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"context"
	"fmt"

	"github.com/scylladb/go-set/strset"

	"github.com/jeranaias/tutorchat/internal/model"
)

// =============================================================================
// UPLOADED FILE REGISTRY
// =============================================================================

// Files returns the uploaded-file registry.
func (s *Store) Files() ([]model.UploadedFile, error) {
	if !s.area.HasFiles() {
		return nil, ErrNoFileRegistry
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.UploadedFile(nil), s.st.files...), nil
}

// AddUploadedFile registers f. Re-registering an id replaces its name.
func (s *Store) AddUploadedFile(ctx context.Context, f model.UploadedFile) error {
	if !s.area.HasFiles() {
		return ErrNoFileRegistry
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	for i := range next.files {
		if next.files[i].FileID == f.FileID {
			next.files[i] = f
			return s.commit(ctx, next, nil)
		}
	}
	next.files = append(next.files, f)
	return s.commit(ctx, next, nil)
}

// DeleteUploadedFile removes fileID from the registry and from every chat's
// attachments in one write.
func (s *Store) DeleteUploadedFile(ctx context.Context, fileID string) error {
	if !s.area.HasFiles() {
		return ErrNoFileRegistry
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	kept := next.files[:0]
	found := false
	for _, f := range next.files {
		if f.FileID == fileID {
			found = true
			continue
		}
		kept = append(kept, f)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	next.files = kept
	pruneDangling(next)
	return s.commit(ctx, next, nil)
}

// FileName returns the registered name of fileID.
func (s *Store) FileName(fileID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.st.files {
		if f.FileID == fileID {
			return f.FileName, true
		}
	}
	return "", false
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// AttachFile adds fileID to the chat's attachments. The file must be
// registered.
func (s *Store) AttachFile(ctx context.Context, chatID, fileID string) (model.Chat, error) {
	return s.setAttached(ctx, chatID, fileID, func(set *strset.Set) bool {
		if set.Has(fileID) {
			return false
		}
		set.Add(fileID)
		return true
	})
}

// DetachFile removes fileID from the chat's attachments.
func (s *Store) DetachFile(ctx context.Context, chatID, fileID string) (model.Chat, error) {
	return s.setAttached(ctx, chatID, fileID, func(set *strset.Set) bool {
		if !set.Has(fileID) {
			return false
		}
		set.Remove(fileID)
		return true
	})
}

// ToggleFile attaches fileID when absent and detaches it otherwise.
func (s *Store) ToggleFile(ctx context.Context, chatID, fileID string) (model.Chat, error) {
	return s.setAttached(ctx, chatID, fileID, func(set *strset.Set) bool {
		if set.Has(fileID) {
			set.Remove(fileID)
		} else {
			set.Add(fileID)
		}
		return true
	})
}

// setAttached edits a chat's attachment set. Attachment order is kept: ids
// already present stay where they are and new ids go last.
func (s *Store) setAttached(ctx context.Context, chatID, fileID string, edit func(*strset.Set) bool) (model.Chat, error) {
	if !s.area.HasFiles() {
		return model.Chat{}, ErrNoFileRegistry
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.st.index(chatID)
	if i < 0 {
		return model.Chat{}, fmt.Errorf("%w: %s", ErrChatNotFound, chatID)
	}
	current := s.st.chats[i].AttachedFileIDs
	set := strset.New(current...)
	if !set.Has(fileID) && !s.registered(fileID) {
		return model.Chat{}, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	if !edit(set) {
		return s.st.chats[i].Clone(), nil
	}

	ids := make([]string, 0, set.Size())
	for _, id := range current {
		if set.Has(id) {
			ids = append(ids, id)
		}
	}
	if set.Has(fileID) && !strset.New(current...).Has(fileID) {
		ids = append(ids, fileID)
	}

	return s.update(ctx, chatID, func(c *model.Chat) error {
		model.ChatUpdate{AttachedFileIDs: ids}.Apply(c, s.now())
		return nil
	})
}

func (s *Store) registered(fileID string) bool {
	for _, f := range s.st.files {
		if f.FileID == fileID {
			return true
		}
	}
	return false
}
