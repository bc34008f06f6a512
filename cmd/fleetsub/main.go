// Command fleetsub serves live coding-agent transcripts over a
// WebSocket relay.
//
// Usage:
//
//	fleetsub serve --config config.yaml
//	fleetsub tail --session <uuid> --file session.jsonl
//	fleetsub version
//
// No environment variable is read directly. Without --config, serve
// reads ~/.fleetsub/config.yaml if it exists; values in the config file
// may reference environment variables as ${VAR}, expanded at load time.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "fleetsub",
		Short:        "Relay live coding-agent transcripts over WebSocket",
		Long:         "fleetsub tails JSONL coding-agent transcripts, parses and enriches them, and relays debounced batches to subscribed WebSocket clients.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildTailCmd())
	rootCmd.AddCommand(buildVersionCmd())

	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "fleetsub %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}
