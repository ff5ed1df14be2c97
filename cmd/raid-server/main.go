// Raid Optimizer Server: MCP over stdio or a JSON HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rsned/raid-optimizer-server/internal/raid/app"
	"github.com/rsned/raid-optimizer-server/internal/raid/config"
	"github.com/rsned/raid-optimizer-server/internal/raid/httpapi"
	"github.com/rsned/raid-optimizer-server/internal/raid/mcp"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config file")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides db.path)")
	explosives := flag.String("explosives", "", "Import explosives from a JSON or YAML file")
	structures := flag.String("structures", "", "Import structures from a JSON or YAML file")
	mode := flag.String("mode", "mcp", "Serve mode: mcp (stdio) or http")
	addr := flag.String("addr", "", "HTTP listen address (overrides http.addr)")
	importOnly := flag.Bool("import-only", false, "Import the catalog files and exit")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	v, err := config.NewViper(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// Only explicitly set flags override the file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "db":
			v.Set("db.path", *dbPath)
		case "explosives":
			v.Set("catalog.explosives", *explosives)
		case "structures":
			v.Set("catalog.structures", *structures)
		case "addr":
			v.Set("http.addr", *addr)
		case "verbose":
			if *verbose {
				v.Set("log.level", "debug")
			}
		}
	})
	cfg, err := config.Decode(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Setup logging
	logger := app.NewLogger(os.Stderr, cfg.LogLevel())
	slog.SetDefault(logger)

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()
	}()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	if *importOnly {
		logger.Info("catalog imported",
			"explosives", len(a.Catalog.ExplosiveIDs()),
			"structures", len(a.Catalog.StructureIDs()))
		return
	}

	switch *mode {
	case "mcp":
		server := mcp.NewServer(a.Service, logger)
		logger.Info("starting MCP server", "db", cfg.DB.Path)
		if err := server.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case "http":
		if err := serveHTTP(ctx, a, logger); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	default:
		logger.Error("unknown mode", "mode", *mode)
		os.Exit(2)
	}

	fmt.Fprintln(os.Stderr, "server stopped")
}

func serveHTTP(ctx context.Context, a *app.App, logger *slog.Logger) error {
	cfg := a.Config.HTTP
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.NewRouter(a.Service, httpapi.Options{
			RequestTimeout: cfg.RequestTimeout,
			MaxBodyBytes:   cfg.MaxBodyBytes,
			Metrics:        a.Metrics,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.Addr, "db", a.Config.DB.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
