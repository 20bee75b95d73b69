package main

import (
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/policyingest/internal/config"
	"github.com/JonMunkholm/policyingest/internal/core"
	"github.com/JonMunkholm/policyingest/internal/store/postgres"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print entity counts with a sample user and policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := postgres.Open(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			st, err := core.NewQueryService(store).Status(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}
}
