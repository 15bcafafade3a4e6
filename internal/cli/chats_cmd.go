// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tutorchat/internal/export"
	"github.com/jeranaias/tutorchat/internal/model"
)

// chatSummary is the --json shape of a listed chat. Tokens are left out.
type chatSummary struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Messages        int      `json:"messages"`
	CreatedAt       int64    `json:"createdAt"`
	UpdatedAt       int64    `json:"updatedAt"`
	AttachedFileIDs []string `json:"attachedFileIds"`
	Current         bool     `json:"current"`
}

func summarize(chats []model.Chat, currentID string) []chatSummary {
	out := make([]chatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatSummary{
			ID:              c.ID,
			Title:           c.Title,
			Messages:        len(c.Messages),
			CreatedAt:       c.CreatedAt,
			UpdatedAt:       c.UpdatedAt,
			AttachedFileIDs: c.AttachedFileIDs,
			Current:         c.ID == currentID,
		})
	}
	return out
}

func newChatsCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chats",
		Aliases: []string{"history"},
		Short:   "List and manage saved chats",
	}

	var jsonOut bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List chats, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			chats := app.Store.Chats()
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), "chats list", summarize(chats, app.Store.CurrentID()), nil)
			}
			printChatTable(cmd.OutOrStdout(), chats, app.Store.CurrentID(), time.Now())
			return nil
		},
	}
	list.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	newChat := &cobra.Command{
		Use:   "new [title]",
		Short: "Start a new chat and make it current",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			chat, err := app.Store.CreateChat(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", SuccessStyle.Render("Created"), chat.Title, DimStyle.Render(chat.ID))
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename <n|id> <title>",
		Short: "Rename a chat",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			chat, err := app.Store.Resolve(args[0])
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := app.Store.RenameChat(cmd.Context(), chat.ID, title); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Renamed to"), title)
			return nil
		},
	}

	var assumeYes bool
	del := &cobra.Command{
		Use:   "delete <n|id>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			chat, err := app.Store.Resolve(args[0])
			if err != nil {
				return err
			}
			ok, err := Confirm(fmt.Sprintf("delete %q", chat.Title), assumeYes)
			if err != nil || !ok {
				return err
			}
			if err := app.Store.DeleteChat(cmd.Context(), chat.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Deleted"), chat.Title)
			return nil
		},
	}
	del.Flags().BoolVarP(&assumeYes, "yes", "y", false, "do not ask for confirmation")

	sel := &cobra.Command{
		Use:     "select <n|id>",
		Aliases: []string{"load"},
		Short:   "Make a chat current",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			target, err := app.Store.Resolve(args[0])
			if err != nil {
				return err
			}
			chat, err := app.Store.LoadChat(cmd.Context(), target.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Current chat:"), chat.Title)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show [n|id]",
		Short: "Print a chat (the current one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			chat, err := app.Store.Current()
			if len(args) == 1 {
				chat, err = app.Store.Resolve(args[0])
			}
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), chat)
			return nil
		},
	}

	var exportOpts struct {
		Format string
		Output string
	}
	exportCmd := &cobra.Command{
		Use:   "export [n|id]",
		Short: "Export a chat to Markdown or JSON (the current one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			chat, err := app.Store.Current()
			if len(args) == 1 {
				chat, err = app.Store.Resolve(args[0])
			}
			if err != nil {
				return err
			}

			opts := export.DefaultOptions()
			opts.OutputDir = exportOpts.Output
			exporter, err := export.ForFormat(exportOpts.Format, opts)
			if err != nil {
				return err
			}
			if exportOpts.Output == "-" {
				data, err := exporter.Export(chat)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			path, err := export.ToFile(chat, exporter, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Exported to"), path)
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&exportOpts.Format, "format", "f", "md", "output format: md or json")
	exportCmd.Flags().StringVarP(&exportOpts.Output, "output", "o", ".", "output directory, or - for stdout")

	cmd.AddCommand(list, newChat, rename, del, sel, show, exportCmd)
	return cmd
}
