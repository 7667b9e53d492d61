package main

import (
	"fmt"
	"strings"

	"github.com/phrazzld/scry-gen/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [" + strings.Join(postgres.MigrationCommands, "|") + "]",
		Short:     "Manage the telemetry database schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg, log, err := opts.loadWithLogOutput(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errNoDatabase
			}

			db, err := postgres.Open(cmd.Context(), cfg.Database.URL, log)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db, command, log); err != nil {
				return fmt.Errorf("migration %s failed: %w", command, err)
			}
			return nil
		},
	}
}
