package cmd

import (
	"fmt"
	"log/slog"

	"github.com/paperchat/paperchat/db"
	"github.com/paperchat/paperchat/internal/config"
)

// runMigrate applies pending database migrations and exits.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("migrations applied",
		"host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	return nil
}
