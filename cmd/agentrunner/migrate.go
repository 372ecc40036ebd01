package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/agent-runner/pkg/store"
)

// newMigrateCommand applies pending Data Store migrations and exits,
// without starting the API or the worker. Useful as a separate init step in
// deployments that run migrations before rolling out new server pods.
func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dbCfg, err := store.LoadConfigFromEnv()
			if err != nil {
				return fmt.Errorf("load database config: %w", err)
			}

			// NewClient applies migrations as part of connecting; migrate's
			// job is exactly that connect-and-migrate step, then disconnect.
			client, err := store.NewClient(ctx, dbCfg)
			if err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			return client.Close()
		},
	}
}
