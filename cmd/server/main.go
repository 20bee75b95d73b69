package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/policyingest/internal/config"
	"github.com/JonMunkholm/policyingest/internal/core"
	_ "github.com/JonMunkholm/policyingest/internal/core/tables" // Register all entities
	"github.com/JonMunkholm/policyingest/internal/logging"
	"github.com/JonMunkholm/policyingest/internal/store/postgres"
	"github.com/JonMunkholm/policyingest/internal/web"
)

func main() {
	if n, err := config.LoadEnvFiles(".env"); err != nil {
		slog.Error("failed to load .env file", "error", err)
		os.Exit(1)
	} else if n == 0 {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	if cfg.Database.AutoMigrate {
		version, err := postgres.Migrate(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database schema ready", "version", version)
	}

	// The pool serves queries only. Every import job opens its own connection.
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	service := core.NewService(postgres.Opener(), core.ServiceConfig{
		StoreTarget:   cfg.Database.URL,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		Retention:     cfg.Upload.Retention,
	})
	defer service.Close()

	slog.Info("entities registered", "count", len(core.All()))

	server := web.NewServer(service, core.NewQueryService(postgres.New(pool)), cfg)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if st := service.LimiterStatus(); st.Active > 0 {
			slog.Info("waiting for import jobs to complete", "active", st.Active)
			if err := service.WaitForJobs(shutdownCtx); err != nil {
				slog.Warn("import jobs did not complete in time", "error", err)
			} else {
				slog.Info("all import jobs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
