// Package main is the voxlate CLI: a WhatsApp bot that translates
// voice notes and texts between languages.
//
// Start the server:
//
//	voxlate serve --config voxlate.yaml
//
// Apply database migrations without starting:
//
//	voxlate migrate
//
// Secrets can be provided through the environment (a .env file is
// loaded if present) and referenced from the config file with
// ${VAR} placeholders.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "voxlate",
		Short: "Voxlate - WhatsApp voice translation bot",
		Long: `Voxlate translates WhatsApp voice notes and text messages.

Users onboard through a chat wizard, get a free translation allowance,
and upgrade via Stripe checkout when it runs out. Voice notes come back
as transcript, translation, and synthesized audio.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildStatusCmd(),
	)
	return rootCmd
}
