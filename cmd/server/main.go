/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the presence and budget engine server.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  serve   Start the HTTP server (default)
  seed    Reset the store and load a demo project, then exit

STARTUP SEQUENCE (serve):
  1. Load configuration (defaults, YAML file, PRESENCE_* env)
  2. Initialize the store (SQLite file, SQLite :memory:, or in-process)
  3. Create the scenario manager and holiday client
  4. Start the holiday prefetcher
  5. Configure HTTP router and start server with graceful shutdown

FLAGS:
  --config   YAML config file (default: $PRESENCE_CONFIG_PATH)
  --port     Overrides server.port
  --db       Overrides db.path; ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the prefetcher
  4. Close the store, ending open subscriptions
  5. Exit

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/presence.db

  # Seed the history demo for owner "alice"
  ./server seed --demo=history --owner=alice

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/presence-engine/api"
	"github.com/warp/presence-engine/config"
	"github.com/warp/presence-engine/holidays"
	"github.com/warp/presence-engine/scenario"
	"github.com/warp/presence-engine/scenario/store"
	"github.com/warp/presence-engine/store/sqlite"
)

var (
	configPath string
	port       int
	dbPath     string
	demoID     string
	demoOwner  string

	rootCmd = &cobra.Command{
		Use:          "server",
		Short:        "Presence and budget engine",
		SilenceUsage: true,
		RunE:         runServe,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Reset the store and load a demo project",
		RunE:  runSeed,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")

	seedCmd.Flags().StringVar(&demoID, "demo", "starter", "Demo to load: starter, published, history")
	seedCmd.Flags().StringVar(&demoOwner, "owner", "local", "Owner of the seeded project")

	rootCmd.AddCommand(serveCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	client := holidays.NewClient(cfg.Holidays.BaseURL,
		holidays.WithTimeout(cfg.Holidays.Timeout),
		holidays.WithCacheTTL(cfg.Holidays.CacheTTL),
	)
	handler := newHandler(st, client, logger)

	prefetcher := api.NewHolidayPrefetcher(client, logger.With("component", "prefetch"))
	prefetcher.Start()
	defer prefetcher.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.CORS.AllowedOrigins...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "db_driver", cfg.DB.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.DB.Driver == "memory" {
		return errors.New("seed needs a persistent store; set db.driver to sqlite")
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	handler := newHandler(st, nil, logger)
	active, err := handler.LoadDemoProject(cmd.Context(), demoOwner, demoID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded demo %q for %s, active scenario %s (%s)\n",
		demoID, demoOwner, active.Name, active.ID)
	return nil
}

// =============================================================================
// WIRING
// =============================================================================

// backend is what both store implementations provide.
type backend interface {
	scenario.Store
	scenario.TemplateStore
	io.Closer
}

func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if dbPath != "" {
		cfg.DB.Driver = "sqlite"
		cfg.DB.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openStore(cfg config.Config) (backend, func(), error) {
	var st backend
	switch cfg.DB.Driver {
	case "memory":
		st = store.NewMemory()
	default:
		if cfg.DB.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		s, err := sqlite.New(cfg.DB.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize database: %w", err)
		}
		st = s
	}
	return st, func() { st.Close() }, nil
}

func newHandler(st backend, source api.HolidaySource, logger *slog.Logger) *api.Handler {
	manager := scenario.NewManager(st,
		scenario.WithTemplates(st),
		scenario.WithLogger(logger.With("component", "scenario")),
	)
	return api.NewHandler(manager, st, source, logger.With("component", "api"))
}
