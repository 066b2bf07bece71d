package main

import (
	"github.com/spf13/cobra"

	"github.com/example/pointpay/internal/config"
	"github.com/example/pointpay/internal/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger tables and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.AppEnv)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			// Open migrates before returning.
			db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			log.Info("migration complete")
			return database.Close(db)
		},
	}
}
