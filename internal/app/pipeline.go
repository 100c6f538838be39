package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-sync/internal/catalogsync"
	"github.com/JakeFAU/catalog-sync/internal/clock"
	"github.com/JakeFAU/catalog-sync/internal/config"
	"github.com/JakeFAU/catalog-sync/internal/crawler"
	"github.com/JakeFAU/catalog-sync/internal/enrich"
	"github.com/JakeFAU/catalog-sync/internal/extract"
	"github.com/JakeFAU/catalog-sync/internal/fetcher"
	"github.com/JakeFAU/catalog-sync/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-sync/internal/metrics"
	"github.com/JakeFAU/catalog-sync/internal/normalize"
	"github.com/JakeFAU/catalog-sync/internal/product"
	"github.com/JakeFAU/catalog-sync/internal/publisher"
	"github.com/JakeFAU/catalog-sync/internal/reconcile"
	"github.com/JakeFAU/catalog-sync/internal/runstore"
	"github.com/JakeFAU/catalog-sync/internal/storage"
)

// ErrArtifactUnreadable wraps every failure to load the handoff file.
var ErrArtifactUnreadable = errors.New("artifact unreadable")

// Catalog is the remote catalog surface used by sync and reconciliation.
type Catalog interface {
	catalogsync.Catalog
	reconcile.Lister
}

// IDGenerator mints run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher fingerprints artifact bytes.
type Hasher interface {
	Hash(data []byte) string
}

// Deps are the collaborators a Pipeline drives. Catalog is only needed by
// Sync; Opener may be nil to disable the rendered fallback.
type Deps struct {
	Fetcher   fetcher.Fetcher
	Opener    headless.Opener
	Extractor *extract.Extractor
	Catalog   Catalog
	Artifacts storage.BlobStore
	Runs      runstore.Recorder
	Publisher publisher.Publisher
	Metrics   *metrics.Collectors
	IDs       IDGenerator
	Clock     clock.Clock
	Hasher    Hasher
}

// IngestResult summarizes crawl, enrichment and the written artifact.
type IngestResult struct {
	Crawl       crawler.Result
	Enrich      enrich.Stats
	Records     []product.Record
	ArtifactURI string
	CSVURI      string
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	RunID          string
	ArtifactDigest string
	Records        int
	Sync           catalogsync.Result
	Report         reconcile.Report
}

// Pipeline sequences the stages. Each stage completes before the next starts.
type Pipeline struct {
	cfg    config.Config
	deps   Deps
	logger *zap.Logger
}

// NewPipeline validates deps and fills optional ones.
func NewPipeline(cfg config.Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New(cfg.Selectors)
	}
	if deps.Runs == nil {
		deps.Runs = runstore.Noop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger}, nil
}

func (p *Pipeline) normalizeOptions() normalize.Options {
	return normalize.Options{
		CurrencyTokens:   p.cfg.Sync.CurrencyTokens,
		PlaceholderImage: normalize.PlaceholderURL(p.cfg.Site.BaseURL, p.cfg.Site.PlaceholderImagePath),
	}
}

// Ingest crawls the listing, enriches and normalizes the records, and writes
// the artifact (plus the CSV export when configured).
func (p *Pipeline) Ingest(ctx context.Context) (IngestResult, error) {
	var res IngestResult
	m := p.deps.Metrics

	start := p.deps.Clock.Now()
	c, err := crawler.New(crawler.Config{
		ListingURL: p.cfg.Site.ListingURL,
		BaseURL:    p.cfg.Site.BaseURL,
		StartPage:  p.cfg.Site.StartPage,
		MaxPages:   p.cfg.Site.MaxPages,
	}, p.deps.Fetcher, p.deps.Extractor, p.logger.Named("crawler"))
	if err != nil {
		return res, err
	}
	res.Crawl, err = c.Crawl(ctx)
	if err != nil {
		return res, err
	}
	m.ObserveCrawl(p.cfg.Site.ListingURL, res.Crawl.Pages, len(res.Crawl.Records), res.Crawl.Duplicates, res.Crawl.StopReason)
	m.ObserveStage("crawl", p.deps.Clock.Now().Sub(start))

	start = p.deps.Clock.Now()
	e, err := enrich.New(enrich.Config{
		BaseURL:             p.cfg.Site.BaseURL,
		Workers:             p.cfg.Enrich.Workers,
		PlaceholderName:     p.cfg.Enrich.PlaceholderName,
		PriceSentinel:       p.cfg.Enrich.PriceSentinel,
		SyntheticNamePrefix: p.cfg.Enrich.SyntheticNamePrefix,
		LargeImageMarker:    p.cfg.Enrich.LargeImageMarker,
		TitleSeparator:      p.cfg.Selectors.TitleSeparator,
		WaitSelector:        p.cfg.Selectors.RenderedWait,
	}, p.deps.Fetcher, p.deps.Extractor, p.deps.Opener, p.logger.Named("enrich"))
	if err != nil {
		return res, err
	}
	enriched, stats, err := e.Enrich(ctx, res.Crawl.Records)
	res.Enrich = stats
	if err != nil {
		return res, err
	}
	m.ObserveEnrich("fast", "visited", stats.Visited)
	m.ObserveEnrich("fast", "failed", stats.FetchFailed)
	m.ObserveEnrich("fallback", "rendered", stats.Rendered)
	m.ObserveEnrich("fallback", "failed", stats.RenderFailed)
	m.ObserveStage("enrich", p.deps.Clock.Now().Sub(start))

	res.Records = normalize.Batch(enriched, p.normalizeOptions())
	if len(res.Records) == 0 {
		p.logger.Warn("Crawl produced no records, writing an empty artifact")
	}

	data, err := product.MarshalJSON(res.Records)
	if err != nil {
		return res, err
	}
	res.ArtifactURI, err = p.deps.Artifacts.PutObject(ctx, p.cfg.Artifact.Path, product.ArtifactContentType, bytes.NewReader(data))
	if err != nil {
		return res, fmt.Errorf("write artifact: %w", err)
	}
	p.logger.Info("Artifact written", zap.String("uri", res.ArtifactURI), zap.Int("records", len(res.Records)))

	if p.cfg.Artifact.CSVPath != "" {
		res.CSVURI, err = p.writeCSV(ctx, res.Records)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func (p *Pipeline) writeCSV(ctx context.Context, batch []product.Record) (string, error) {
	rows := make([]product.CSVRow, 0, len(batch))
	for _, rec := range batch {
		rows = append(rows, product.CSVRow{
			Name:         rec.Name,
			Type:         product.ItemTypeSimple,
			RegularPrice: rec.NormalizedPrice,
			Description:  product.Description(p.cfg.Sync.DescriptionTemplate, rec),
			Categories:   p.cfg.Artifact.CSVCategory,
			Images:       rec.ImageURL,
		})
	}
	var buf bytes.Buffer
	if err := product.EncodeCSV(&buf, rows); err != nil {
		return "", err
	}
	uri, err := p.deps.Artifacts.PutObject(ctx, p.cfg.Artifact.CSVPath, product.CSVContentType, &buf)
	if err != nil {
		return "", fmt.Errorf("write csv export: %w", err)
	}
	p.logger.Info("CSV export written", zap.String("uri", uri), zap.Int("rows", len(rows)))
	return uri, nil
}

// Sync loads the artifact, upserts it into the remote catalog and reconciles
// the target category. Run ledger, notification and metrics push are side
// outputs: their failures are logged and never change the result.
func (p *Pipeline) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if p.deps.Catalog == nil {
		return res, errors.New("catalog client is required for sync")
	}
	category := p.cfg.Sync.Category

	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return res, err
	}
	res.RunID = runID
	logger := p.logger.With(zap.String("run_id", runID))
	started := p.deps.Clock.Now()
	if err := p.deps.Runs.StartRun(ctx, runID, category, started); err != nil {
		logger.Warn("Run ledger start failed", zap.Error(err))
	}

	res, err = p.sync(ctx, logger, res)
	p.finish(ctx, logger, started, res, err)
	return res, err
}

func (p *Pipeline) sync(ctx context.Context, logger *zap.Logger, res SyncResult) (SyncResult, error) {
	data, err := p.deps.Artifacts.GetObject(ctx, p.cfg.Artifact.Path)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %w", ErrArtifactUnreadable, p.cfg.Artifact.Path, err)
	}
	if p.deps.Hasher != nil {
		res.ArtifactDigest = p.deps.Hasher.Hash(data)
	}
	batch, err := product.DecodeJSON(bytes.NewReader(data))
	if err != nil {
		return res, fmt.Errorf("%w: %s: %w", ErrArtifactUnreadable, p.cfg.Artifact.Path, err)
	}
	batch = normalize.Batch(batch, p.normalizeOptions())
	res.Records = len(batch)
	logger.Info("Artifact loaded",
		zap.String("path", p.cfg.Artifact.Path),
		zap.String("sha256", res.ArtifactDigest),
		zap.Int("records", res.Records),
	)

	start := p.deps.Clock.Now()
	engine, err := catalogsync.New(catalogsync.Config{
		Category:            p.cfg.Sync.Category,
		BatchSize:           p.cfg.Sync.BatchSize,
		DescriptionTemplate: p.cfg.Sync.DescriptionTemplate,
	}, p.deps.Catalog, logger.Named("sync"))
	if err != nil {
		return res, err
	}
	res.Sync, err = engine.Sync(ctx, batch)
	if err != nil {
		return res, err
	}
	p.deps.Metrics.ObserveSync(res.Sync.Summary.Created, res.Sync.Summary.Updated, res.Sync.Summary.Failed)
	p.deps.Metrics.ObserveStage("sync", p.deps.Clock.Now().Sub(start))

	start = p.deps.Clock.Now()
	rep, err := reconcile.New(p.deps.Catalog, logger.Named("reconcile")).
		Reconcile(ctx, p.cfg.Sync.Category, product.Names(batch))
	if err != nil {
		logger.Warn("Reconciliation failed", zap.Error(err))
	}
	res.Report = rep
	p.deps.Metrics.ObserveReconcile(len(rep.Missing), len(rep.Extra))
	p.deps.Metrics.ObserveStage("reconcile", p.deps.Clock.Now().Sub(start))
	return res, nil
}

func (p *Pipeline) finish(ctx context.Context, logger *zap.Logger, started time.Time, res SyncResult, runErr error) {
	finished := p.deps.Clock.Now()
	status := runstore.StatusSucceeded
	var errMsg *string
	if runErr != nil {
		status = runstore.StatusFailed
		msg := runErr.Error()
		errMsg = &msg
	} else {
		p.deps.Metrics.MarkSuccess(finished)
	}
	totals := runstore.Totals{
		Records: res.Records,
		Created: res.Sync.Summary.Created,
		Updated: res.Sync.Summary.Updated,
		Failed:  res.Sync.Summary.Failed,
		Missing: len(res.Report.Missing),
		Extra:   len(res.Report.Extra),
		Partial: res.Report.Partial,
	}

	// Side outputs run even when ctx was canceled mid-run.
	sideCtx := context.WithoutCancel(ctx)
	if err := p.deps.Runs.CompleteRun(sideCtx, res.RunID, finished, status, totals, errMsg); err != nil {
		logger.Warn("Run ledger completion failed", zap.Error(err))
	}
	if p.deps.Publisher != nil {
		event := publisher.RunCompleted{
			RunID:       res.RunID,
			Category:    p.cfg.Sync.Category,
			Status:      string(status),
			Records:     totals.Records,
			Created:     totals.Created,
			Updated:     totals.Updated,
			Failed:      totals.Failed,
			Missing:     totals.Missing,
			Extra:       totals.Extra,
			Partial:     totals.Partial,
			ArtifactURI: p.cfg.Artifact.Path,
			FinishedAt:  finished,
		}
		if id, err := p.deps.Publisher.Publish(sideCtx, p.cfg.PubSub.Topic, event); err != nil {
			logger.Warn("Run notification failed", zap.Error(err))
		} else {
			logger.Debug("Run notification published", zap.String("message_id", id))
		}
	}
	if p.cfg.Metrics.PushgatewayURL != "" {
		if err := p.deps.Metrics.Push(sideCtx, p.cfg.Metrics.PushgatewayURL, p.cfg.Metrics.Job); err != nil {
			logger.Warn("Metrics push failed", zap.Error(err))
		}
	}
	logger.Info("Sync run finished",
		zap.String("status", string(status)),
		zap.Duration("elapsed", finished.Sub(started)),
	)
}
