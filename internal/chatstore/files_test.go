// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chatstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tutorchat/internal/kvstore"
	"github.com/jeranaias/tutorchat/internal/model"
)

func ragStoreWithFiles(t *testing.T, ids ...string) (*Store, *flakyKV) {
	t.Helper()
	kv := &flakyKV{Store: kvstore.NewMemory()}
	s, _ := openStore(t, kv, AreaRAG)
	for _, id := range ids {
		require.NoError(t, s.AddUploadedFile(context.Background(), model.UploadedFile{FileID: id, FileName: id + ".pdf"}))
	}
	return s, kv
}

func TestFiles_NoRegistryInStreamingArea(t *testing.T) {
	s, _ := openStore(t, kvstore.NewMemory(), AreaStreaming)
	ctx := context.Background()

	_, err := s.Files()
	assert.ErrorIs(t, err, ErrNoFileRegistry)
	assert.ErrorIs(t, s.AddUploadedFile(ctx, model.UploadedFile{FileID: "f"}), ErrNoFileRegistry)
	_, err = s.ToggleFile(ctx, s.CurrentID(), "f")
	assert.ErrorIs(t, err, ErrNoFileRegistry)
}

func TestAddUploadedFile_ReplacesName(t *testing.T) {
	s, _ := ragStoreWithFiles(t, "f1")
	require.NoError(t, s.AddUploadedFile(context.Background(), model.UploadedFile{FileID: "f1", FileName: "renamed.pdf"}))

	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	name, ok := s.FileName("f1")
	assert.True(t, ok)
	assert.Equal(t, "renamed.pdf", name)
}

func TestAttachFile_RequiresRegisteredFile(t *testing.T) {
	s, _ := ragStoreWithFiles(t)
	_, err := s.AttachFile(context.Background(), s.CurrentID(), "ghost")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestAttachDetach_KeepsOrder(t *testing.T) {
	s, _ := ragStoreWithFiles(t, "f1", "f2", "f3")
	ctx := context.Background()
	id := s.CurrentID()

	for _, f := range []string{"f2", "f1", "f3", "f1"} {
		_, err := s.AttachFile(ctx, id, f)
		require.NoError(t, err)
	}
	chat, err := s.DetachFile(ctx, id, "f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"f2", "f3"}, chat.AttachedFileIDs)
}

func TestToggleFile(t *testing.T) {
	s, _ := ragStoreWithFiles(t, "f1")
	ctx := context.Background()
	id := s.CurrentID()

	chat, err := s.ToggleFile(ctx, id, "f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, chat.AttachedFileIDs)

	chat, err = s.ToggleFile(ctx, id, "f1")
	require.NoError(t, err)
	assert.Empty(t, chat.AttachedFileIDs)
}

func TestDeleteUploadedFile_CascadesToChats(t *testing.T) {
	s, kv := ragStoreWithFiles(t, "f1", "f2")
	ctx := context.Background()
	a := s.CurrentID()
	b, err := s.CreateChat(ctx, "")
	require.NoError(t, err)

	for _, id := range []string{a, b.ID} {
		_, err := s.AttachFile(ctx, id, "f1")
		require.NoError(t, err)
		_, err = s.AttachFile(ctx, id, "f2")
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteUploadedFile(ctx, "f1"))
	for _, c := range s.Chats() {
		assert.Equal(t, []string{"f2"}, c.AttachedFileIDs)
	}
	for _, c := range readChats(t, kv, AreaRAG.ChatsKey) {
		assert.Equal(t, []string{"f2"}, c.AttachedFileIDs)
	}
	files, _ := s.Files()
	assert.Equal(t, []model.UploadedFile{{FileID: "f2", FileName: "f2.pdf"}}, files)
}

func TestDeleteUploadedFile_FailureIsAtomic(t *testing.T) {
	s, kv := ragStoreWithFiles(t, "f1")
	ctx := context.Background()
	_, err := s.AttachFile(ctx, s.CurrentID(), "f1")
	require.NoError(t, err)

	kv.fail.Store(true)
	assert.ErrorIs(t, s.DeleteUploadedFile(ctx, "f1"), errDisk)

	files, _ := s.Files()
	assert.Len(t, files, 1)
	cur, _ := s.Current()
	assert.Equal(t, []string{"f1"}, cur.AttachedFileIDs)
}

func TestDeleteUploadedFile_Unknown(t *testing.T) {
	s, _ := ragStoreWithFiles(t)
	assert.ErrorIs(t, s.DeleteUploadedFile(context.Background(), "nope"), ErrFileNotFound)
}
