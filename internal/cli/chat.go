// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for tutorchat.
//
// Interactive Commands (during chat):
//   /help               Show available commands
//   /new [title]        Start a new chat
//   /list               List chats
//   /load <n|id>        Switch to a chat
//   /rename <title>     Rename the current chat
//   /delete [n|id]      Delete a chat (current by default)
//   /show               Reprint the current chat
//   /files              List uploaded files (--rag)
//   /upload <path>      Upload a document (--rag)
//   /attach <n|id>      Attach a file to the current chat (--rag)
//   /detach <n|id>      Detach a file (--rag)
//   /toggle <n|id>      Toggle a file (--rag)
//   /quit               Exit
//   Ctrl+C              Cancel the reply being streamed
//   Ctrl+D              Exit

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/tutorchat/internal/config"
	"github.com/jeranaias/tutorchat/internal/logging"
	"github.com/jeranaias/tutorchat/internal/model"
	"github.com/jeranaias/tutorchat/internal/session"
)

func newChatCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default command)",
		Example: `  tutorchat chat
  tutorchat --rag chat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, g)
		},
	}
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineInput provides history and line editing for the REPL.
type lineInput struct {
	line        *liner.State
	historyFile string
}

func newLineInput() *lineInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &lineInput{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

func (in *lineInput) read(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

// close saves history with owner-only permissions and restores the terminal.
func (in *lineInput) close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			in.line.WriteHistory(f)
			f.Close()
		}
	}
	in.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// repl is the interactive chat loop over one App.
type repl struct {
	app *App
	out io.Writer
}

func runChat(cmd *cobra.Command, g *globalOptions) error {
	ctx := cmd.Context()
	app, err := g.app(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	r := &repl{app: app, out: cmd.OutOrStdout()}
	input := newLineInput()
	defer input.close()

	r.printWelcome()
	for {
		line, err := input.read(PromptStyle.Render("you> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or a closed stdin
			fmt.Fprintln(r.out)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
			}
			if quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		if err := r.send(ctx, line); err != nil {
			fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

func (r *repl) printWelcome() {
	area := "AI Tutor"
	if r.app.Store.Area().HasFiles() {
		area = "AI Tutor with documents"
	}
	fmt.Fprintln(r.out, TitleStyle.Render(area))
	if chat, err := r.app.Store.Current(); err == nil {
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("Chat: %s (%d messages)", chat.Title, len(chat.Messages))))
	}
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, Ctrl+C to stop a reply, Ctrl+D to exit."))
	fmt.Fprintln(r.out)
}

// send runs one turn, streaming the reply. Ctrl+C cancels the turn.
func (r *repl) send(ctx context.Context, input string) error {
	turn, err := r.app.Controller.Submit(ctx, input)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			r.app.Controller.Cancel()
		case <-turn.Done():
		}
	}()

	return r.follow(turn)
}

// follow prints a turn's events until it ends.
func (r *repl) follow(turn *session.Turn) error {
	fmt.Fprintln(r.out, roleLabel(model.RoleAssistant))
	live := newLiveWriter(r.out)
	for ev := range turn.Events() {
		switch ev.Kind {
		case session.EventProgress:
			live.update(ev.Text)
		case session.EventCompleted:
			live.finish(ev.Message.Content)
			fmt.Fprintln(r.out)
		case session.EventFailed:
			if live.started() {
				fmt.Fprintln(r.out)
			}
			fmt.Fprintln(r.out, WarningStyle.Render(ev.Message.Content))
			r.app.Logger.Debug("turn failed", logging.Err(ev.Err))
			fmt.Fprintln(r.out)
		case session.EventCancelled:
			if live.started() {
				fmt.Fprintln(r.out)
			}
			fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
			fmt.Fprintln(r.out)
		}
	}
	return nil
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// parseSlash splits "/name rest of line" into its name and argument.
func parseSlash(line string) (name, arg string) {
	line = strings.TrimPrefix(strings.TrimSpace(line), "/")
	name, arg, _ = strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

var errUsage = errors.New("usage")

// command runs a slash command. It reports true when the REPL should exit.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg := parseSlash(line)
	store := r.app.Store

	need := func(what string) error {
		if arg == "" {
			return fmt.Errorf("%w: /%s %s", errUsage, name, what)
		}
		return nil
	}

	switch name {
	case "quit", "q", "exit":
		return true, nil

	case "help", "h", "?":
		r.printHelp()

	case "new", "n":
		chat, err := store.CreateChat(ctx, arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Started "+chat.Title))

	case "list", "ls", "history":
		printChatTable(r.out, store.Chats(), store.CurrentID(), time.Now())

	case "load", "open":
		if err := need("<n|id>"); err != nil {
			return false, err
		}
		target, err := store.Resolve(arg)
		if err != nil {
			return false, err
		}
		chat, err := store.LoadChat(ctx, target.ID)
		if err != nil {
			return false, err
		}
		printTranscript(r.out, chat)

	case "show":
		chat, err := store.Current()
		if err != nil {
			return false, err
		}
		printTranscript(r.out, chat)

	case "rename":
		if err := need("<title>"); err != nil {
			return false, err
		}
		if err := store.RenameChat(ctx, store.CurrentID(), arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Renamed to "+arg))

	case "delete", "rm":
		target, err := store.Current()
		if arg != "" {
			target, err = store.Resolve(arg)
		}
		if err != nil {
			return false, err
		}
		ok, err := Confirm(fmt.Sprintf("delete %q", target.Title), false)
		if err != nil || !ok {
			return false, err
		}
		if err := store.DeleteChat(ctx, target.ID); err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Deleted "+target.Title))

	case "files":
		files, err := store.Files()
		if err != nil {
			return false, err
		}
		chat, _ := store.Current()
		printFileTable(r.out, files, chat.AttachedFileIDs)

	case "upload":
		if err := need("<path>"); err != nil {
			return false, err
		}
		f, err := uploadFile(ctx, r.app, arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("Uploaded "+f.FileName))

	case "attach", "detach", "toggle":
		if err := need("<n|id>"); err != nil {
			return false, err
		}
		fileID, err := resolveFile(store, arg)
		if err != nil {
			return false, err
		}
		chat, err := editAttachment(ctx, store, name, store.CurrentID(), fileID)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s %d file(s) attached\n", SuccessStyle.Render("OK"), len(chat.AttachedFileIDs))

	default:
		return false, fmt.Errorf("unknown command /%s (try /help)", name)
	}
	return false, nil
}

func (r *repl) printHelp() {
	rows := [][2]string{
		{"/new [title]", "Start a new chat"},
		{"/list", "List chats"},
		{"/load <n|id>", "Switch to a chat"},
		{"/show", "Reprint the current chat"},
		{"/rename <title>", "Rename the current chat"},
		{"/delete [n|id]", "Delete a chat"},
	}
	if r.app.Store.Area().HasFiles() {
		rows = append(rows,
			[2]string{"/files", "List uploaded files"},
			[2]string{"/upload <path>", "Upload a document"},
			[2]string{"/attach <n|id>", "Attach a file to this chat"},
			[2]string{"/detach <n|id>", "Detach a file"},
			[2]string{"/toggle <n|id>", "Toggle a file"},
		)
	}
	rows = append(rows, [2]string{"/quit", "Exit"})
	for _, row := range rows {
		fmt.Fprintf(r.out, "  %-18s %s\n", row[0], DimStyle.Render(row[1]))
	}
}
