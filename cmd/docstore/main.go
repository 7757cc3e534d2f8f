package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docstore/internal/config"
	"github.com/kailas-cloud/docstore/internal/db/factory"
	logpkg "github.com/kailas-cloud/docstore/internal/logger"
	"github.com/kailas-cloud/docstore/internal/metrics"
	chiTransport "github.com/kailas-cloud/docstore/internal/transport/chi"
	healthuc "github.com/kailas-cloud/docstore/internal/usecase/health"
	"github.com/kailas-cloud/docstore/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docstore",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("driver", cfg.Datastore.Driver),
		zap.Bool("cache", cfg.Cache.Enabled),
	)

	// Register datastore metrics explicitly (no init())
	metrics.RegisterDatastoreMetrics()

	ctx := context.Background()
	ds, err := factory.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open datastore", zap.Error(err))
	}

	healthSvc := healthuc.New(ds.Store, ds.CachePinger())

	server := chiTransport.NewServer(healthSvc, cfg.HTTP.APIKeys, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := ds.Close(shutdownCtx); err != nil {
		logger.Error("Error closing datastore", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
