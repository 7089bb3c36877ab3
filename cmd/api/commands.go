package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leadboard/api/internal/app"
	"leadboard/api/internal/cache"
	cronrunner "leadboard/api/internal/cron"
	"leadboard/api/internal/search"
	"leadboard/api/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply pending migrations and run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := store.ApplyMigrations(cmd.Context(), rt.db, rt.cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		rt.logger.Info("migrations applied", zap.String("dir", rt.cfg.MigrationsDir))
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back the most recent migrations (default 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()
		if err := store.RollbackMigrations(cmd.Context(), rt.db, rt.cfg.MigrationsDir, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		rt.logger.Info("migrations rolled back", zap.Int("steps", steps))
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Mark queued companies completed when deep research exists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		service := app.New(rt.cfg, store.NewPostgresStore(rt.db), nil, rt.logger)
		updated, err := service.ReconcileQueue(cmd.Context())
		rt.logger.Info("research queue reconciled", zap.Int("updated", updated))
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d entries marked completed\n", updated)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

func serve(ctx context.Context) error {
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, log := rt.cfg, rt.logger

	if err := store.ApplyMigrations(ctx, rt.db, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	searchCfg := search.Config{CacheTTL: cfg.SearchCacheTTL, Logger: log.Named("search")}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, "leadboard:")
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisCache.Close()
		searchCfg.Cache = redisCache
		log.Info("search cache enabled", zap.Duration("ttl", cfg.SearchCacheTTL))
	}

	prospects := search.NewProspectSource(rt.db)
	customers := search.NewCustomerSource(rt.db)
	searchCfg.Sources = []search.Source{prospects, customers}
	if cfg.MeiliURL != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.Named("meili"))
		defer meiliClient.Close()
		searchCfg.Meili = meiliClient
		searchCfg.Loaders = []search.RecordLoader{prospects, customers}
		searchCfg.Sources = []search.Source{
			search.NewMeiliSource(meiliClient, prospects, log),
			search.NewMeiliSource(meiliClient, customers, log),
		}
	}
	searchService := search.NewService(searchCfg)
	searchService.ReindexFromStore(ctx)

	service := app.New(cfg, store.NewPostgresStore(rt.db), searchService, log)

	runner := cronrunner.New(log.Named("cron"), ctx)
	if cfg.ReconcileSchedule != "" {
		if _, err := runner.Add("reconcile_research", cfg.ReconcileSchedule, func(ctx context.Context) error {
			_, err := service.ReconcileQueue(ctx)
			return err
		}); err != nil {
			return fmt.Errorf("schedule reconcile: %w", err)
		}
	}
	if searchCfg.Meili != nil && cfg.ReindexSchedule != "" {
		if _, err := runner.Add("reindex_search", cfg.ReindexSchedule, func(ctx context.Context) error {
			searchService.ReindexFromStore(ctx)
			return nil
		}); err != nil {
			return fmt.Errorf("schedule reindex: %w", err)
		}
	}
	runner.Start()
	defer runner.Stop()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin, log.Named("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("leadboard api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	return nil
}
