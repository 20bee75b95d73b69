package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/policyingest/internal/config"
	"github.com/JonMunkholm/policyingest/internal/store/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			version, err := postgres.Migrate(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return err
		},
	}
}
