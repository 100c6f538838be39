// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-sync/internal/clock/system"
	"github.com/JakeFAU/catalog-sync/internal/config"
	"github.com/JakeFAU/catalog-sync/internal/extract"
	collyfetcher "github.com/JakeFAU/catalog-sync/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-sync/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-sync/internal/hash/sha256"
	"github.com/JakeFAU/catalog-sync/internal/id/uuid"
	"github.com/JakeFAU/catalog-sync/internal/metrics"
	"github.com/JakeFAU/catalog-sync/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/catalog-sync/internal/publisher/pubsub"
	"github.com/JakeFAU/catalog-sync/internal/runstore"
	runpostgres "github.com/JakeFAU/catalog-sync/internal/runstore/postgres"
	"github.com/JakeFAU/catalog-sync/internal/storage"
	"github.com/JakeFAU/catalog-sync/internal/storage/gcs"
	"github.com/JakeFAU/catalog-sync/internal/storage/local"
	"github.com/JakeFAU/catalog-sync/internal/woo"
)

// App holds the shared, long-lived services of one CLI invocation: the
// artifact store, the optional run ledger and notifier, and the metrics
// registry. Pipelines are built from it on demand.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Artifacts storage.BlobStore
	Runs      runstore.Recorder
	Publisher publisher.Publisher
	Metrics   *metrics.Collectors

	closers []func() error
}

// NewApp creates the services selected by cfg. It fails fast when a
// configured provider cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New(), Runs: runstore.Noop{}}
	logger.Info("Initializing application services...")

	switch cfg.Artifact.Provider {
	case "gcs":
		if cfg.Artifact.Bucket == "" {
			return nil, fmt.Errorf("artifact provider is 'gcs' but artifact.bucket is not set")
		}
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Artifact.Bucket, Prefix: cfg.Artifact.Prefix})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		logger.Info("Using GCS artifact store", zap.String("bucket", cfg.Artifact.Bucket))
		a.Artifacts = store
	case "local", "":
		store, err := local.New(local.Config{BaseDir: cfg.Artifact.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		logger.Info("Using local artifact store", zap.String("dir", cfg.Artifact.BaseDir))
		a.Artifacts = store
	default:
		return nil, fmt.Errorf("unknown artifact provider: %s", cfg.Artifact.Provider)
	}

	if cfg.RunStore.DSN != "" {
		store, err := runpostgres.New(ctx, runpostgres.Config{
			DSN:             cfg.RunStore.DSN,
			Table:           cfg.RunStore.Table,
			MaxConns:        cfg.RunStore.MaxConns,
			MinConns:        cfg.RunStore.MinConns,
			MaxConnLifetime: cfg.RunStore.MaxConnLifetime,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize run store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Warn("Run table check failed", zap.Error(err))
		}
		a.Runs = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		logger.Info("Recording runs in Postgres", zap.String("table", cfg.RunStore.Table))
	}

	if cfg.PubSub.ProjectID != "" || cfg.PubSub.Topic != "" {
		pub, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize publisher: %w", err)
		}
		a.Publisher = pub
		a.closers = append(a.closers, pub.Close)
		logger.Info("Publishing run notifications", zap.String("topic", cfg.PubSub.Topic))
	}

	logger.Info("Application services initialized successfully.")
	return a, nil
}

// NewPipeline wires the stage components. withCatalog adds the remote
// catalog client, which requires credentials.
func (a *App) NewPipeline(withCatalog bool) (*Pipeline, error) {
	cfg := a.Config
	fetch, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:         cfg.HTTP.UserAgent,
		Timeout:           cfg.HTTP.Timeout,
		Parallelism:       cfg.Enrich.Workers,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	hcfg := headless.Config{
		Enabled:     cfg.Headless.Enabled,
		UserAgent:   cfg.HTTP.UserAgent,
		ExecPath:    cfg.Headless.ExecPath,
		WaitTimeout: cfg.Headless.WaitTimeout,
	}
	var opener headless.Opener
	if headless.Available(hcfg) {
		opener = headless.NewOpener(hcfg)
	} else if cfg.Headless.Enabled {
		a.Logger.Warn("No headless browser found, rendered fallback is disabled")
	}

	deps := Deps{
		Fetcher:   fetch,
		Opener:    opener,
		Extractor: extract.New(cfg.Selectors),
		Artifacts: a.Artifacts,
		Runs:      a.Runs,
		Publisher: a.Publisher,
		Metrics:   a.Metrics,
		IDs:       uuid.New(),
		Clock:     system.New(),
		Hasher:    sha256.New(),
	}
	if withCatalog {
		if err := cfg.ValidateCatalog(); err != nil {
			return nil, err
		}
		client, err := woo.NewClient(woo.Config{
			BaseURL:           cfg.Catalog.BaseURL,
			ConsumerKey:       cfg.Catalog.ConsumerKey,
			ConsumerSecret:    cfg.Catalog.ConsumerSecret,
			Timeout:           cfg.Catalog.Timeout,
			RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
			PageSize:          cfg.Catalog.PageSize,
			QueryStringAuth:   cfg.Catalog.QueryStringAuth,
			UserAgent:         cfg.HTTP.UserAgent,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("init catalog client: %w", err)
		}
		deps.Catalog = client
	}
	return NewPipeline(cfg, deps, a.Logger)
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close() {
	a.Logger.Info("Shutting down application services...")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
}
