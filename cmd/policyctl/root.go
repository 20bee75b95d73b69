package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/policyingest/internal/config"
	"github.com/JonMunkholm/policyingest/internal/logging"
)

func newRootCmd() *cobra.Command {
	var (
		envFile   string
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:          "policyctl",
		Short:        "Import policy spreadsheets and inspect the policy database",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadEnvFiles(envFile); err != nil {
				return err
			}
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), logLevel, logFormat))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load if present")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(newIngestCmd(), newMigrateCmd(), newStatusCmd())
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
