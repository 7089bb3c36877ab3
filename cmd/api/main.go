package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadboard/api/internal/config"
	"leadboard/api/internal/logger"
	"leadboard/api/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "leadboard",
	Short:         "Sales-intelligence dashboard API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// deps holds what every subcommand needs.
type deps struct {
	cfg    config.Config
	logger *zap.Logger
	db     *sql.DB
}

func bootstrap(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := store.Open(ctx, cfg.DatabaseURL, store.Pool{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return &deps{cfg: cfg, logger: log, db: db}, nil
}

func (r *deps) Close() {
	_ = r.db.Close()
	_ = r.logger.Sync()
}
