/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the budget engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Initialize SQLite store
  3. Wire domain services and engines
  4. Configure HTTP router
  5. Start the overdue-sweep scheduler
  6. Start server with graceful shutdown

CONFIGURATION:
  Flags win over environment variables:
  -port / PORT              HTTP server port (default: 8080)
  -db / DATABASE_PATH       SQLite database path (default: budget.db)
                            Use ":memory:" for an in-memory database
  -sweep / SWEEP_INTERVAL   Overdue sweep interval (default: 1h)
  LOG_LEVEL                 zerolog level (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweep scheduler
  4. Close database connection

SEE ALSO:
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/invoice"
	"github.com/warp/budget-engine/ledger"
	"github.com/warp/budget-engine/procurement"
	"github.com/warp/budget-engine/store/sqlite"
	"github.com/warp/budget-engine/supplier"
)

func main() {
	// .env is optional; flags override it.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envString("DATABASE_PATH", "budget.db"), "SQLite database path")
	sweepInterval := flag.Duration("sweep", envDuration("SWEEP_INTERVAL", time.Hour), "overdue sweep interval")
	flag.Parse()

	log := newLogger()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("failed to initialize database")
	}
	defer store.Close()

	ledgerSvc := ledger.NewService(store)
	poEngine := procurement.NewEngine(store, store)
	invoiceEngine := invoice.NewEngine(store.Invoices(), store)
	supplierSvc := supplier.NewService(store.Suppliers())

	handler := api.NewHandler(ledgerSvc, poEngine, invoiceEngine, supplierSvc, log)
	router := api.NewRouter(handler)

	scheduler := api.NewSweepScheduler(store, invoiceEngine, log)
	scheduler.CheckInterval = *sweepInterval
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Str("db", *dbPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
