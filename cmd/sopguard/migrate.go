package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/sopguard/config"
	"github.com/mohammad-safakhou/sopguard/internal/kv"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var migDir string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run postgres storage migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Postgres.Host == "" && cfg.Storage.Postgres.URL == "" {
				return fmt.Errorf("postgres not configured (storage.postgres.host or url)")
			}
			if migDir == "" {
				migDir = "file://" + cfg.Storage.MigrationsDir
			}
			return kv.Migrate(migDir, cfg.Storage.Postgres.DSN(), direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "", "migrations source (default file://<storage.migrations_dir>)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
