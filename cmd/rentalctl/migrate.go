package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rentwheel/service-rental/internal/config"
	"github.com/rentwheel/service-rental/migrations"
	"github.com/rentwheel/service-rental/pkg/database"
	"github.com/rentwheel/service-rental/pkg/logger"
)

func migrateCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log, err := logger.NewNamed(cfg.AppEnv, "rentalctl")
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			url := postgresConfig(cfg).DatabaseURL()

			switch args[0] {
			case "up":
				return database.RunMigrations(url, migrations.FS, log)
			case "down":
				if steps < 1 {
					return fmt.Errorf("--steps must be at least 1")
				}
				return database.RollbackMigrations(url, migrations.FS, steps, log)
			default:
				return fmt.Errorf("unknown direction %q, expected up or down", args[0])
			}
		},
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")

	return cmd
}
