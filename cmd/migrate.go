package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/listing-service/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		pool, err := db.NewPostgresPool(cmd.Context(), cfg.DatabaseURL, 2)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		return db.Migrate(cmd.Context(), pool, logger.Named("migrate"))
	},
}
