// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tutorchat/internal/session"
)

// errTurnCancelled is returned by ask when the reply was interrupted.
var errTurnCancelled = errors.New("reply cancelled")

func newAskCmd(g *globalOptions) *cobra.Command {
	var opts struct {
		NewChat bool
		Chat    string
	}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and stream the reply",
		Long: `Ask one question in the current chat and stream the reply.

The question is read from stdin when no argument is given.`,
		Example: `  tutorchat ask "What is osmosis?"
  tutorchat ask --new "Explain recursion"
  echo "Summarise chapter 2" | tutorchat --rag ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if strings.TrimSpace(question) == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read question: %w", err)
				}
				question = string(data)
			}
			if strings.TrimSpace(question) == "" {
				return session.ErrEmptyInput
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			app, err := g.app(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			switch {
			case opts.NewChat:
				if _, err := app.Store.CreateChat(ctx, ""); err != nil {
					return err
				}
			case opts.Chat != "":
				target, err := app.Store.Resolve(opts.Chat)
				if err != nil {
					return err
				}
				if _, err := app.Store.LoadChat(ctx, target.ID); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			live := newLiveWriter(out)
			ev, err := app.Controller.Run(ctx, question, live.update)
			if err != nil {
				return err
			}

			switch ev.Kind {
			case session.EventCompleted:
				live.finish(ev.Message.Content)
				return nil
			case session.EventCancelled:
				if live.started() {
					fmt.Fprintln(out)
				}
				return errTurnCancelled
			default:
				if live.started() {
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out, WarningStyle.Render(ev.Message.Content))
				return ev.Err
			}
		},
	}

	cmd.Flags().BoolVarP(&opts.NewChat, "new", "n", false, "start a new chat first")
	cmd.Flags().StringVar(&opts.Chat, "chat", "", "ask in this chat (position or id) and make it current")
	cmd.MarkFlagsMutuallyExclusive("new", "chat")
	return cmd
}
