package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/celerix-dev/celerix-ledger/internal/api"
	"github.com/celerix-dev/celerix-ledger/internal/config"
	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/internal/server"
	"github.com/celerix-dev/celerix-ledger/internal/vault"
	"github.com/celerix-dev/celerix-ledger/pkg/sdk"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("starting ledger daemon", "data_dir", cfg.DataDir, "format", cfg.Format.Name())

	// 2. Initialize Persistence
	persister, err := engine.NewPersistence(cfg.DataDir, cfg.Format)
	if err != nil {
		logger.Error("failed to initialize persistence", "err", err)
		os.Exit(1)
	}

	// 3. Build one record store per entity
	registry, err := engine.NewRegistry(persister, cfg.Entities, logger)
	if err != nil {
		logger.Error("failed to build entity registry", "err", err)
		os.Exit(1)
	}
	ledger := sdk.NewLocal(registry)
	logger.Info("registry ready", "entities", registry.Names())

	// 4. Initialize the TCP Router
	router := server.NewRouter(ledger, logger.With("component", "tcp"))

	// 5. Setup TLS
	if cfg.UseTLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			logger.Error("failed to generate TLS certificate", "err", err)
			os.Exit(1)
		}
		router.SetCertificate(cert)
		logger.Info("TLS encryption enabled")
	} else {
		logger.Warn("TLS encryption disabled (LEDGER_DISABLE_TLS=true)")
	}

	// 6. Initialize HTTP API
	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	h := &api.Handler{Ledger: ledger, Logger: logger.With("component", "http")}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), api.CORS())
	h.Register(r.Group("/api"))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. Start servers
	go func() {
		logger.Info("HTTP API listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "err", err)
			os.Exit(1)
		}
	}()

	// 8. Handle Graceful Shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("HTTP shutdown incomplete", "err", err)
		}
		router.Stop()
	}()

	// 9. Start the TCP Server
	logger.Info("TCP protocol listening", "port", cfg.Port)
	if err := router.Listen(cfg.Port); err != nil {
		logger.Error("TCP server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("ledger daemon stopped")
}
