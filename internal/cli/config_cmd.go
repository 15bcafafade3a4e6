// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/tutorchat/internal/config"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with the built-in defaults",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfig": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if path == "" {
				if err := config.EnsureConfigDir(); err != nil {
					return err
				}
				p, err := config.ConfigPathTOML()
				if err != nil {
					return err
				}
				path = p
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveTOML(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Wrote"), path)
			fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("Set api.api_key and api.chatbot_id, or export TUTORCHAT_API_KEY and TUTORCHAT_CHATBOT_ID."))
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	var jsonOut bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			masked := *g.cfg
			masked.API.APIKey = maskSecret(masked.API.APIKey)
			masked.RAG.APIKey = maskSecret(masked.RAG.APIKey)
			masked.Token.FallbackToken = maskSecret(masked.Token.FallbackToken)
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), "config show", masked, nil)
			}
			printConfig(cmd.OutOrStdout(), &masked)
			return nil
		},
	}
	show.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	path := &cobra.Command{
		Use:         "path",
		Short:       "Print the config file location",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfig": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p := g.configPath
			if p == "" {
				var err error
				if p, err = config.ConfigPathTOML(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.AddCommand(initCmd, show, path)
	return cmd
}

func printConfig(w io.Writer, cfg *config.Config) {
	row := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", RenderLabel(label), ValueStyle.Render(value))
	}
	dataDir, _ := cfg.DataDir()

	fmt.Fprintln(w, TitleStyle.Render("API"))
	row("base_url", cfg.API.BaseURL)
	row("api_key", cfg.API.APIKey)
	row("chatbot_id", cfg.API.ChatbotID)
	row("timeout", cfg.APITimeout().String())

	fmt.Fprintln(w, TitleStyle.Render("Retrieval"))
	row("base_url", cfg.RAG.BaseURL)
	row("api_key", cfg.RAG.APIKey)
	row("top_k", fmt.Sprint(cfg.RAG.TopK))

	fmt.Fprintln(w, TitleStyle.Render("Storage"))
	row("backend", cfg.Storage.Backend)
	row("dir", dataDir)
	if cfg.Storage.Backend == "redis" {
		row("redis_url", cfg.Storage.RedisURL)
	}

	fmt.Fprintln(w, TitleStyle.Render("Tokens"))
	row("fallback", cfg.Token.FallbackToken)
	row("margin", cfg.TokenMargin().String())
	row("strict", fmt.Sprint(cfg.Token.StrictFallback))

	fmt.Fprintln(w, TitleStyle.Render("Logging"))
	row("level", cfg.Log.Level)
}

// maskSecret replaces a credential with a short SHA-256 fingerprint.
func maskSecret(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) < 8 {
		return "[set]"
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("sha256:%x...", hash[:4])
}
