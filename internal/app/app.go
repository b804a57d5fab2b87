// Package app owns the application lifecycle: it wires the stores, caches,
// ledgers, market service, and API server together, restores persisted market
// state, and supervises the long-running goroutines until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openpredict/marketd/internal/config"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// shutdownTimeout bounds how long in-flight HTTP requests may drain.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// cleanup functions that run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, restores persisted market state, and runs the
// server, hub, and archiver until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("version", Version),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if err := deps.Service.Restore(ctx); err != nil {
		return fmt.Errorf("app: restore state: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return deps.Server.Shutdown(shutdownCtx)
	})

	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(gctx)
		})
	}
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close tears down resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
