package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patisserie-labs/storefront/internal/app/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations to DATABASE_URL",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig("migrate")
	if err != nil {
		return err
	}
	if cfg.Storage.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	db, err := postgres.Open(cmd.Context(), cfg.Storage.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Apply(cmd.Context(), db); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("migrations applied")
	return nil
}
