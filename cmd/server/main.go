/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the paluwagan engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Configure structured logging
  3. Initialize SQLite store
  4. Create API handler with dependencies
  5. Start the auto-advance scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080)
  -db            SQLite database path (default: paluwagan.db)
                 Use ":memory:" for an in-memory database
  -auto-advance  Enable the overdue-cycle scheduler (default: false)
  -sweep         Scheduler check interval (default: 1h)
  -max-branches  Membership limit: branches per user (default: 3)
  -max-monthly   Membership limit: monthly-equivalent total (default: 3000)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database and the scheduler on
  ./server -db="./data/paluwagan.db" -auto-advance

  # Run with in-memory database
  ./server -db=":memory:"

ENVIRONMENT:
  LOG_LEVEL: debug, info, warn, error (default: info)

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Auto-advance scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hiraya/paluwagan-engine/api"
	"github.com/hiraya/paluwagan-engine/logging"
	"github.com/hiraya/paluwagan-engine/paluwagan"
	"github.com/hiraya/paluwagan-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "paluwagan.db", "SQLite database path")
	autoAdvance := flag.Bool("auto-advance", false, "enable the overdue-cycle scheduler")
	sweep := flag.Duration("sweep", time.Hour, "scheduler check interval")
	maxBranches := flag.Int("max-branches", 3, "membership limit: branches per user")
	maxMonthly := flag.String("max-monthly", "3000", "membership limit: monthly-equivalent contribution total")
	flag.Parse()

	logging.Setup()

	monthlyCap, err := decimal.NewFromString(*maxMonthly)
	if err != nil {
		slog.Error("invalid -max-monthly value", "value", *maxMonthly, "error", err)
		os.Exit(1)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store)
	handler.Memberships.Limits = paluwagan.LimitPolicy{
		MaxBranches:     *maxBranches,
		MaxMonthlyTotal: monthlyCap,
	}
	router := api.NewRouter(handler)

	// Auto-advance scheduler
	scheduler := api.NewAdvanceScheduler(store, handler)
	scheduler.Enabled = *autoAdvance
	scheduler.CheckInterval = *sweep
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d", *port), "db", *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
