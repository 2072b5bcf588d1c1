// weft-mcp serves a store catalog and per-session shopping carts as MCP tools.
// Designed for Cloud Run deployment; carts survive restarts only with the
// postgres backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"weft-mcp/internal/cart"
	"weft-mcp/internal/catalog"
	"weft-mcp/internal/config"
	"weft-mcp/internal/handler"
	"weft-mcp/internal/metrics"
	"weft-mcp/internal/middleware"
	"weft-mcp/internal/search"
	"weft-mcp/internal/session"
	"weft-mcp/internal/transport"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("catalog_source", cfg.Catalog.Source),
		slog.String("store_policy", cfg.Catalog.StorePolicy),
		slog.String("default_store", cfg.Catalog.DefaultStore),
		slog.String("cart_backend", cfg.Cart.Backend),
	)

	policy, err := catalog.ParseStorePolicy(cfg.Catalog.StorePolicy)
	if err != nil {
		return err
	}
	source, err := createSource(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("creating catalog source: %w", err)
	}
	loader := catalog.NewLoader(source, policy, cfg.Catalog.DefaultStore, logger)

	backend, closeBackend, err := createBackend(ctx, cfg.Cart)
	if err != nil {
		return fmt.Errorf("creating cart backend: %w", err)
	}
	defer closeBackend()

	display := catalog.DisplayOptions{
		ImageBaseURL: cfg.Catalog.ImageBaseURL,
		Currency:     cfg.Catalog.Currency,
	}
	m := metrics.New()

	h := handler.New(handler.Services{
		Catalog:  loader,
		Search:   search.NewEngine(loader, display, logger),
		Carts:    cart.NewRegistry(backend, loader, display, logger),
		Sessions: session.NewResolver(logger, m.SessionFallback),
		Metrics:  m,
	}, handler.Options{
		Currency:  cfg.Catalog.Currency,
		WidgetDir: cfg.MCP.WidgetDir,
		Stateless: cfg.MCP.Stateless,
		Version:   version,
	}, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery is outermost so panics in the other middleware are caught.
	// RequestID runs before Logging so every log line carries the id.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Metrics(m, handler.RouteLabel),
	)(mux)

	// No WriteTimeout: MCP responses may stream over SSE.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
			slog.String("version", version),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// createSource builds the catalog source named by the configuration.
func createSource(cfg config.CatalogConfig) (catalog.Source, error) {
	switch cfg.Source {
	case "file":
		return catalog.NewFileSource(cfg.Root), nil
	case "http":
		var rt http.RoundTripper
		if cfg.ChromeTLS {
			rt = transport.NewChromeTransport(transport.Options{Timeout: time.Duration(cfg.Timeout)})
		}
		return catalog.NewHTTPSource(cfg.BaseURL, rt, time.Duration(cfg.Timeout)), nil
	default:
		return nil, fmt.Errorf("unsupported catalog source: %s", cfg.Source)
	}
}

// createBackend opens the cart backend. The returned func releases it.
func createBackend(ctx context.Context, cfg config.CartConfig) (cart.Backend, func(), error) {
	switch cfg.Backend {
	case "memory":
		return cart.NewMemoryBackend(), func() {}, nil
	case "postgres":
		if err := cart.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pinging database: %w", err)
		}
		return cart.NewPostgresBackend(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cart backend: %s", cfg.Backend)
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
