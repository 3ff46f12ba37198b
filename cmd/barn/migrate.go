package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the store schema for the configured backend",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	if err := migrateBackend(context.Background(), cfg); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Printf("migrated %s schema\n", cfg.StoreBackend)
	return nil
}
