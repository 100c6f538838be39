// Package enrich completes partial catalog records by visiting their detail
// pages. A concurrent static tier runs over the whole batch; a sequential
// rendered-browser tier then runs only over the records that are still
// incomplete.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-sync/internal/extract"
	"github.com/JakeFAU/catalog-sync/internal/fetcher"
	"github.com/JakeFAU/catalog-sync/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-sync/internal/normalize"
	"github.com/JakeFAU/catalog-sync/internal/product"
)

const (
	defaultWorkers             = 5
	defaultPlaceholderName     = "Unknown Product"
	defaultPriceSentinel       = "0"
	defaultSyntheticNamePrefix = "Cake Product"
	defaultLargeImageMarker    = "larg"
	defaultTitleSeparator      = "|"
)

// Config controls the Engine.
type Config struct {
	BaseURL             string
	Workers             int
	PlaceholderName     string
	PriceSentinel       string
	SyntheticNamePrefix string
	LargeImageMarker    string
	TitleSeparator      string
	WaitSelector        string
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.PlaceholderName == "" {
		c.PlaceholderName = defaultPlaceholderName
	}
	if c.PriceSentinel == "" {
		c.PriceSentinel = defaultPriceSentinel
	}
	if c.SyntheticNamePrefix == "" {
		c.SyntheticNamePrefix = defaultSyntheticNamePrefix
	}
	if c.LargeImageMarker == "" {
		c.LargeImageMarker = defaultLargeImageMarker
	}
	if c.TitleSeparator == "" {
		c.TitleSeparator = defaultTitleSeparator
	}
	return c
}

// Stats counts what each tier did.
type Stats struct {
	Visited            int
	FetchFailed        int
	FallbackCandidates int
	Rendered           int
	RenderFailed       int
	FallbackSkipped    bool
}

// Engine is the enrichment engine.
type Engine struct {
	cfg       Config
	fetcher   fetcher.Fetcher
	extractor *extract.Extractor
	open      headless.Opener
	logger    *zap.Logger
}

// New builds an Engine. A nil opener disables the rendered tier; candidates
// are then only given their final synthetic values.
func New(cfg Config, f fetcher.Fetcher, ex *extract.Extractor, open headless.Opener, logger *zap.Logger) (*Engine, error) {
	if f == nil {
		return nil, errors.New("fetcher is required")
	}
	if ex == nil {
		ex = extract.New(extract.Selectors{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = ex.Selectors().RenderedWait
	}
	return &Engine{cfg: cfg, fetcher: f, extractor: ex, open: open, logger: logger}, nil
}

// Enrich runs both tiers. The returned batch has the same length and order
// as batch; the input slice is not modified.
func (e *Engine) Enrich(ctx context.Context, batch []product.Record) ([]product.Record, Stats, error) {
	out, stats := e.FastTier(ctx, batch)
	if err := ctx.Err(); err != nil {
		return out, stats, fmt.Errorf("enrich canceled: %w", err)
	}
	out, fb := e.FallbackTier(ctx, out)
	stats.FallbackCandidates = fb.FallbackCandidates
	stats.Rendered = fb.Rendered
	stats.RenderFailed = fb.RenderFailed
	stats.FallbackSkipped = fb.FallbackSkipped

	e.logger.Info("Enrichment finished",
		zap.Int("records", len(out)),
		zap.Int("visited", stats.Visited),
		zap.Int("fetch_failed", stats.FetchFailed),
		zap.Int("fallback_candidates", stats.FallbackCandidates),
		zap.Int("rendered", stats.Rendered),
		zap.Int("render_failed", stats.RenderFailed),
		zap.Bool("fallback_skipped", stats.FallbackSkipped),
	)
	if err := ctx.Err(); err != nil {
		return out, stats, fmt.Errorf("enrich canceled: %w", err)
	}
	return out, stats, nil
}

// Incomplete reports whether rec still lacks a usable name or price.
func (e *Engine) Incomplete(rec product.Record) bool {
	return e.needsName(rec.Name) || e.needsPrice(rec.Price)
}

func (e *Engine) needsName(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || name == e.cfg.PlaceholderName
}

func (e *Engine) needsPrice(price string) bool {
	price = strings.TrimSpace(price)
	return price == "" || price == e.cfg.PriceSentinel
}

// replaceableName also accepts the exact name this engine would synthesize
// for the record at in, so a later tier may swap it for a real heading. A
// storefront title that merely shares the synthetic prefix is kept.
func (e *Engine) replaceableName(name string, in input) bool {
	if e.needsName(name) {
		return true
	}
	name = strings.TrimSpace(name)
	for _, s := range e.finalStrategies().name {
		if v := strings.TrimSpace(s(in)); v != "" && v == name {
			return true
		}
	}
	return false
}

func (e *Engine) absolute(link string) string {
	if link == "" {
		return ""
	}
	abs, err := normalize.Resolve(e.cfg.BaseURL, link)
	if err != nil {
		return link
	}
	return abs
}

// apply merges what a detail page offered into rec. Fields only move
// towards more complete values.
func (e *Engine) apply(rec product.Record, in input, strat strategies, preferLarge bool) product.Record {
	if large := in.detail.LargeImage; large != "" {
		if preferLarge || !strings.Contains(rec.ImageURL, e.cfg.LargeImageMarker) {
			abs, _ := normalize.RepairImagePath(e.cfg.BaseURL, large)
			rec.ImageURL = abs
			if rec.SourcePath == "" {
				rec.SourcePath = large
			}
		}
	}
	if e.replaceableName(rec.Name, in) {
		if v := firstOf(in, strat.name); v != "" {
			rec.Name = v
		}
	}
	if e.needsPrice(rec.Price) {
		if v := firstOf(in, strat.price); v != "" {
			rec.Price = v
		}
	}
	return e.finalize(in.index, rec)
}

// finalize guarantees a non-empty name and price.
func (e *Engine) finalize(index int, rec product.Record) product.Record {
	if e.needsName(rec.Name) {
		in := input{index: index, link: e.absolute(rec.DetailLink)}
		rec.Name = firstOf(in, e.finalStrategies().name)
	}
	if strings.TrimSpace(rec.Price) == "" {
		rec.Price = e.cfg.PriceSentinel
	}
	return rec
}
