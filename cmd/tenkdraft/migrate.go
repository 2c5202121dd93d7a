package main

import (
	"github.com/spf13/cobra"

	"github.com/finlegal/tenkdraft/config"
	"github.com/finlegal/tenkdraft/internal/audit"
)

func migrateCMD() *cobra.Command {
	var migDir = "file://migrations"
	var dsn string
	var direction string
	var steps int
	var cfgPath string

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run audit store database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				cfg, err := config.LoadConfig(cfgPath)
				if err != nil {
					return err
				}
				dsn, err = cfg.Storage.Postgres.DSN()
				if err != nil {
					return err
				}
			}
			return audit.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", migDir, "migrations source (file://migrations)")
	migrate.Flags().StringVar(&dsn, "dsn", "", "postgres DSN (default from config)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	return migrate
}
