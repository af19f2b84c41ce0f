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

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tabstore/internal/config"
	"github.com/JonMunkholm/tabstore/internal/core"
	"github.com/JonMunkholm/tabstore/internal/filestore"
	"github.com/JonMunkholm/tabstore/internal/filestore/minio"
	"github.com/JonMunkholm/tabstore/internal/logging"
	"github.com/JonMunkholm/tabstore/internal/store/postgres"
	"github.com/JonMunkholm/tabstore/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"archive_enabled", cfg.Archive.Enabled,
	)
	slog.Debug("configuration", "config", cfg.String())

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var archive core.Archive
	if cfg.Archive.Enabled {
		a, err := openArchive(ctx, cfg.Archive)
		if err != nil {
			slog.Error("failed to open raw file archive", "error", err)
			os.Exit(1)
		}
		archive = a
		slog.Info("raw file archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	service := core.NewService(store, archive, core.ServiceConfig{
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		Timeout:       cfg.Upload.Timeout,
		BatchSize:     cfg.Upload.BatchSize,
		NullTokens:    cfg.Upload.NullTokens,
		DefaultLimit:  cfg.Query.DefaultLimit,
		MaxLimit:      cfg.Query.MaxLimit,
	})

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := service.WaitForIngestions(shutdownCtx); err != nil {
			slog.Warn("ingestions did not complete in time", "error", err)
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

// openStore connects the configured store driver.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, error) {
	if cfg.Store.Driver == config.StoreMemory {
		slog.Warn("using in-memory store, datasets are lost on restart")
		return core.NewMemoryStore(), nil
	}

	store, err := postgres.Open(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if cfg.Database.Migrate {
		if err := postgres.RunMigrations(store.Pool()); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

func openArchive(ctx context.Context, cfg config.ArchiveConfig) (*filestore.Archive, error) {
	driver, err := minio.New(filestore.Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Region:    cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return filestore.NewArchive(ctx, driver, cfg.Bucket, cfg.URLTTL)
}
