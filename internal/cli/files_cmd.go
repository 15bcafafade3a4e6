// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tutorchat/internal/chatstore"
	"github.com/jeranaias/tutorchat/internal/model"
)

// errNeedsRAG is returned by file commands outside the retrieval area.
var errNeedsRAG = errors.New("file commands need the document area, run with --rag")

// =============================================================================
// HELPERS
// =============================================================================

// uploadFile sends path to the retrieval service and registers the result.
func uploadFile(ctx context.Context, app *App, path string) (model.UploadedFile, error) {
	if app.RAG == nil {
		return model.UploadedFile{}, errNeedsRAG
	}
	f, err := os.Open(path)
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	uploaded, err := app.RAG.Upload(ctx, filepath.Base(path), f)
	if err != nil {
		return model.UploadedFile{}, err
	}
	if err := app.Store.AddUploadedFile(ctx, uploaded); err != nil {
		return model.UploadedFile{}, err
	}
	app.Logger.Info("file uploaded", "file", uploaded.FileName, "id", uploaded.FileID)
	return uploaded, nil
}

// resolveFile finds a registered file by 1-based position, id or name.
func resolveFile(store *chatstore.Store, ref string) (string, error) {
	files, err := store.Files()
	if err != nil {
		if errors.Is(err, chatstore.ErrNoFileRegistry) {
			return "", errNeedsRAG
		}
		return "", err
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(files) {
			return files[n-1].FileID, nil
		}
		return "", fmt.Errorf("%w: no file at position %d", chatstore.ErrFileNotFound, n)
	}
	for _, f := range files {
		if f.FileID == ref {
			return f.FileID, nil
		}
	}
	for _, f := range files {
		if strings.EqualFold(f.FileName, ref) {
			return f.FileID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", chatstore.ErrFileNotFound, ref)
}

// editAttachment applies attach, detach or toggle to chatID.
func editAttachment(ctx context.Context, store *chatstore.Store, op, chatID, fileID string) (model.Chat, error) {
	switch op {
	case "attach":
		return store.AttachFile(ctx, chatID, fileID)
	case "detach":
		return store.DetachFile(ctx, chatID, fileID)
	default:
		return store.ToggleFile(ctx, chatID, fileID)
	}
}

// =============================================================================
// FILES COMMAND
// =============================================================================

func newFilesCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage documents for retrieval-augmented chats",
		Long: `Manage documents for retrieval-augmented chats.

Files live in the document area, so these commands imply --rag.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			g.rag = true
			return g.loadConfig()
		},
	}

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List uploaded files; [x] marks files attached to the current chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			files, err := app.Store.Files()
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), "files list", files, err)
			}
			if err != nil {
				return err
			}
			chat, _ := app.Store.Current()
			printFileTable(cmd.OutOrStdout(), files, chat.AttachedFileIDs)
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	var attachAfter bool
	upload := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload documents to the retrieval service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			for _, path := range args {
				f, err := uploadFile(cmd.Context(), app, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", SuccessStyle.Render("Uploaded"), f.FileName, DimStyle.Render(f.FileID))
				if attachAfter {
					if _, err := app.Store.AttachFile(cmd.Context(), app.Store.CurrentID(), f.FileID); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	upload.Flags().BoolVarP(&attachAfter, "attach", "a", false, "attach to the current chat after upload")

	var assumeYes bool
	del := &cobra.Command{
		Use:   "delete <n|id|name>",
		Short: "Forget an uploaded file and detach it from every chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := resolveFile(app.Store, args[0])
			if err != nil {
				return err
			}
			name, _ := app.Store.FileName(id)
			ok, err := Confirm(fmt.Sprintf("delete %q", name), assumeYes)
			if err != nil || !ok {
				return err
			}
			if err := app.Store.DeleteUploadedFile(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted "+name))
			return nil
		},
	}
	del.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	cmd.AddCommand(list, upload, del,
		newAttachmentCmd(g, "attach", "Attach a file to the current chat"),
		newAttachmentCmd(g, "detach", "Detach a file from the current chat"),
		newAttachmentCmd(g, "toggle", "Toggle a file on the current chat"),
	)
	return cmd
}

func newAttachmentCmd(g *globalOptions, op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <n|id|name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := resolveFile(app.Store, args[0])
			if err != nil {
				return err
			}
			chat, err := editAttachment(cmd.Context(), app.Store, op, app.Store.CurrentID(), id)
			if err != nil {
				return err
			}
			files, _ := app.Store.Files()
			printFileTable(cmd.OutOrStdout(), files, chat.AttachedFileIDs)
			return nil
		},
	}
}
