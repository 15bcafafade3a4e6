// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tutorchat/internal/config"
	"github.com/jeranaias/tutorchat/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	rag        bool
	logLevel   string
	noColor    bool

	cfg    *config.Config
	logger *slog.Logger
}

// loadConfig resolves configuration and installs the logger.
func (g *globalOptions) loadConfig() error {
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFromPath(g.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.noColor {
		cfg.Log.NoColor = true
	}

	g.cfg = cfg
	g.logger = logging.Setup(cfg.Log.Level, cfg.Log.NoColor)
	return nil
}

// app wires the client for the area selected by --rag.
func (g *globalOptions) app(ctx context.Context) (*App, error) {
	if g.cfg == nil {
		if err := g.loadConfig(); err != nil {
			return nil, err
		}
	}
	return NewApp(ctx, g.cfg, g.logger, Area(g.rag))
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "tutorchat",
		Short: "Chat with an AI tutor from the terminal",
		Long: `tutorchat streams answers from the AI tutor API.

With --rag, questions in chats that have attached documents are answered
from those documents. Upload them with "tutorchat files upload".`,
		Version:       fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfig"] == "true" {
				return nil
			}
			return g.loadConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, g)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "config file (default ~/.tutorchat/config.toml)")
	flags.BoolVar(&g.rag, "rag", false, "use the document-augmented chat area")
	flags.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&g.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newChatCmd(g),
		newAskCmd(g),
		newChatsCmd(g),
		newFilesCmd(g),
		newConfigCmd(g),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
