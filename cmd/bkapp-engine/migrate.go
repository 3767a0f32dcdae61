package main

import (
	"fmt"

	"github.com/chiwei-platform/bkapp-engine/internal/adapter/repository"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := repository.OpenDB(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := repository.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migration finished")
			return nil
		},
	}
}
