/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the SACCO lending engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse command-line flags
  2. Initialize SQLite store
  3. Wire the loan and teller services over the shared ledger
  4. Configure HTTP router and start the overdue sweeper
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port      HTTP server port (default: 8080, env PORT)
  -db        SQLite database path (default: sacco.db, env DB_PATH)
             Use ":memory:" for an in-memory database
  -sweep     Overdue sweeper cron spec (default: @daily, env SWEEP_SPEC)
  -currency  Default currency code (default: KES, env CURRENCY)
  -features  Comma-separated enabled features (default:
             "mpesa_integration,bank_integration", env FEATURES).
             Disabling a feature blocks its disbursement method.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper, close the database
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/sacco.db"

  # Run with in-memory database and hourly sweep
  ./server -db=":memory:" -sweep="@hourly"

  # Cash/cheque branch with no provider integrations
  ./server -features=""

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Overdue sweeper
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mkopo/sacco-engine/api"
	"github.com/mkopo/sacco-engine/authz"
	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/loan"
	"github.com/mkopo/sacco-engine/store/sqlite"
	"github.com/mkopo/sacco-engine/teller"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// .env values become defaults; flags still win.
	if err := godotenv.Load(); err == nil {
		log.Info("loaded configuration from .env")
	}

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "sacco.db"), "SQLite database path")
	sweepSpec := flag.String("sweep", envStr("SWEEP_SPEC", "@daily"), "Overdue sweeper cron spec")
	currency := flag.String("currency", envStr("CURRENCY", "KES"), "Default currency code")
	features := flag.String("features", envStr("FEATURES", "mpesa_integration,bank_integration"),
		"Comma-separated enabled features")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Shared ledger over the store
	led := ledger.NewLedger(store)

	// Feature capabilities gate disbursement methods
	caps := authz.NewCapabilitySet(splitFeatures(*features)...)
	allowed := make(map[loan.DisbursementMethod]bool)
	for method, ok := range caps.DisbursementMethods() {
		allowed[loan.DisbursementMethod(method)] = ok
	}

	loans := &loan.Service{
		Applications:   store,
		Members:        store,
		Products:       store,
		Ledger:         led,
		Audit:          store,
		AllowedMethods: allowed,
	}
	tel := &teller.Service{
		Floats:    store,
		Shortages: store,
		Handovers: store,
		Ledger:    led,
		Audit:     store,
		Verifier:  &teller.BcryptVerifier{Credentials: store},
		Currency:  ledger.Currency(*currency),
	}

	// Handler + router
	handler := api.NewHandler(store, loans, tel, log)
	handler.Currency = ledger.Currency(*currency)
	router := api.NewRouter(handler)

	// Overdue sweeper
	sweeper := api.NewOverdueSweeper(store, loans, log)
	sweeper.Spec = *sweepSpec
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Fatal("failed to start overdue sweeper")
	}
	defer sweeper.Stop()

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
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}

func envStr(key, fallback string) string {
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

func splitFeatures(s string) []authz.Feature {
	var out []authz.Feature
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, authz.Feature(part))
		}
	}
	return out
}
