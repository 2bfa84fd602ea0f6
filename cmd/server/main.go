/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the planning engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the logger
  3. Register engines (simulator connected, Anaplan on demand)
  4. Initialize SQLite store for saved connections
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -host       Listen host (default: all interfaces)
  -port       HTTP server port (default: 3001)
  -db         SQLite database path (default: planning.db)
              Use ":memory:" for in-memory database
  -log-level  debug, info, warn, error
  -log-dev    Console log output
  -seed       Simulator dataset seed

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (SERVER_SHUTDOWN_TIMEOUT)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/planning.db"

  # Run with in-memory database and debug logs
  ./server -db=":memory:" -log-level=debug -log-dev

ENVIRONMENT:
  See config/config.go. A .env file in the working directory is read
  first and never overrides variables already set.

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - simulator/engine.go, anaplan/adapter.go: Engines
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/planning-engine/anaplan"
	"github.com/warp/planning-engine/api"
	"github.com/warp/planning-engine/config"
	"github.com/warp/planning-engine/logger"
	"github.com/warp/planning-engine/planning"
	"github.com/warp/planning-engine/simulator"
	"github.com/warp/planning-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env", os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// Engines
	engines := planning.NewRegistry()
	sim := simulator.New(log, cfg.Mock.Seed)
	if err := sim.Connect(context.Background(), planning.Credentials{}); err != nil {
		return fmt.Errorf("connect simulator: %w", err)
	}
	if err := engines.Register(sim); err != nil {
		return err
	}
	ap := anaplan.New(anaplan.Options{
		APIBase: cfg.Anaplan.APIBase,
		AuthURL: cfg.Anaplan.AuthURL,
		Timeout: cfg.Anaplan.Timeout,
		Defaults: planning.Credentials{
			Email:    cfg.Anaplan.Email,
			Password: cfg.Anaplan.Password,
			Token:    cfg.Anaplan.Token,
		},
		Logger:               log,
		DiscoveryConcurrency: cfg.Anaplan.DiscoveryConcurrency,
	})
	if err := engines.Register(ap); err != nil {
		return err
	}

	// Initialize store
	store, err := sqlite.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer store.Close()

	handler := api.NewHandler(engines, store, log)
	router := api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", server.Addr, "db", cfg.Storage.DBPath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Infow("shutting down server", "signal", sig.String())
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	if err := ap.Disconnect(ctx); err != nil {
		log.Warnw("anaplan disconnect", "error", err)
	}

	log.Infow("server stopped")
	return nil
}
