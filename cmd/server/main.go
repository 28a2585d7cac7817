/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the commission engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + BROKING_* env)
  2. Initialize logger
  3. Open SQLite store
  4. Create API handler with dependencies
  5. Start server with graceful shutdown

CONFIGURATION:
  Looks for broking.yaml in the working directory or ~/.broking,
  overridable per key via BROKING_* environment variables and the
  -config flag. See config/config.go for defaults.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with defaults (broking.db in cwd, port 8080)
  ./server

  # Run with explicit config
  ./server -config=./deploy/broking.yaml

  # Override via environment
  BROKING_SERVER_PORT=3000 BROKING_STORE_PATH=:memory: ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/keystone/broking-engine/api"
	"github.com/keystone/broking-engine/commission"
	"github.com/keystone/broking-engine/config"
	"github.com/keystone/broking-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := config.InitLogger(cfg.Log); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger := zap.L()
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Initialize handler
	reconciler := commission.NewReconciler(cfg.Settlement.Tolerance())
	handler := api.NewHandler(store, cfg.Compliance.GuardConfig(), reconciler, logger)

	// Create router
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.Store.Path))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
