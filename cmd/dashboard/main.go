// Package main wires together the dashboard service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/betterdocs/dashboard/internal/agent"
	"github.com/betterdocs/dashboard/internal/api"
	"github.com/betterdocs/dashboard/internal/config"
	"github.com/betterdocs/dashboard/internal/logging"
	"github.com/betterdocs/dashboard/internal/store"
	memorystorage "github.com/betterdocs/dashboard/internal/storage/memory"
	"github.com/betterdocs/dashboard/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Best effort; a missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var docs store.DocsRepository
	if cfg.DB.DSN != "" {
		pgStore, err := postgres.NewDocsStore(ctx, postgres.DocsStoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer pgStore.Close()
		docs = pgStore
		logger.Info("using postgres docs store")
	} else {
		docs = memorystorage.NewDocsStore()
		logger.Info("no db.dsn configured, using in-memory docs store")
	}

	agentClient := agent.New(agent.Config{
		BaseURL: cfg.Agent.BaseURL,
		Logger:  logger.Named("agent"),
	})
	auth := api.HeaderAuth{Header: cfg.Auth.IdentityHeader}
	apiServer := api.NewServer(agentClient, docs, auth, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
