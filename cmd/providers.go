// File: cmd/providers.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/api/schemas"
	"github.com/xkilldash9x/cythink/internal/browser"
	"github.com/xkilldash9x/cythink/internal/browser/htmldoc"
	"github.com/xkilldash9x/cythink/internal/config"
	"github.com/xkilldash9x/cythink/internal/observability"
	"github.com/xkilldash9x/cythink/internal/store"
)

// cacheProvider opens the durable cache selected by configuration. Tests inject a provider
// backed by a temporary file.
type cacheProvider interface {
	// Open returns the loaded cache and a cleanup function releasing its resources.
	Open(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger, metrics *observability.Metrics) (*store.Cache, func(), error)
}

// defaultCacheProvider opens the JSON file or PostgreSQL persistence port.
type defaultCacheProvider struct{}

// NewCacheProvider returns the production cache provider.
func NewCacheProvider() cacheProvider {
	return &defaultCacheProvider{}
}

func (p *defaultCacheProvider) Open(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger, metrics *observability.Metrics) (*store.Cache, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid cache configuration: %w", err)
	}

	switch cfg.Backend {
	case config.CacheBackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		persister, err := store.NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		cache, err := store.NewCache(ctx, persister, cfg.PendingLimit, logger, metrics)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		cleanup := func() {
			pool.Close()
			logger.Debug("Database connection pool closed.")
		}
		return cache, cleanup, nil
	default:
		cache, err := store.NewCache(ctx, store.NewFileStore(cfg.Path), cfg.PendingLimit, logger, metrics)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		return cache, func() {}, nil
	}
}

// clientFactory builds the translation backend. llmclient.NewClient in production.
type clientFactory func(ctx context.Context, cfg config.TranslatorConfig, logger *zap.Logger) (schemas.TranslationClient, error)

// driverFactory opens an automation engine and returns a function closing it.
type driverFactory func(ctx context.Context, kind string, cfg config.BrowserConfig, logger *zap.Logger) (browser.Driver, func(), error)

// Automation engines selectable with --driver.
const (
	DriverChrome  = "chrome"
	DriverHTMLDoc = "htmldoc"
)

func openDriver(ctx context.Context, kind string, cfg config.BrowserConfig, logger *zap.Logger) (browser.Driver, func(), error) {
	switch kind {
	case DriverChrome, "":
		d, err := browser.NewCDPDriver(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	case DriverHTMLDoc:
		return htmldoc.New(logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported driver %q (supported: %s, %s)", kind, DriverChrome, DriverHTMLDoc)
	}
}
