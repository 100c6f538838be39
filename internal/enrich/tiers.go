package enrich

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-sync/internal/fetcher/headless"
	"github.com/JakeFAU/catalog-sync/internal/product"
)

// FastTier fetches every record's static detail page with at most
// Config.Workers requests in flight. Each result is written back to its own
// index, so the output order matches the input. A record whose page cannot
// be fetched or parsed is returned unchanged.
func (e *Engine) FastTier(ctx context.Context, batch []product.Record) ([]product.Record, Stats) {
	out := product.Clone(batch)
	var visited, failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, rec := range out {
		if rec.DetailLink == "" {
			continue
		}
		g.Go(func() error {
			visited.Add(1)
			enriched, err := e.enrichStatic(ctx, i, rec)
			if err != nil {
				failed.Add(1)
				e.logger.Debug("Detail page fetch failed",
					zap.Int("index", i),
					zap.String("link", rec.DetailLink),
					zap.Error(err),
				)
				return nil
			}
			out[i] = enriched
			return nil
		})
	}
	_ = g.Wait()

	stats := Stats{Visited: int(visited.Load()), FetchFailed: int(failed.Load())}
	e.logger.Info("Fast tier finished",
		zap.String("tier", "fast"),
		zap.Int("visited", stats.Visited),
		zap.Int("failed", stats.FetchFailed),
	)
	return out, stats
}

func (e *Engine) enrichStatic(ctx context.Context, index int, rec product.Record) (product.Record, error) {
	link := e.absolute(rec.DetailLink)
	page, err := e.fetcher.Fetch(ctx, link)
	if err != nil {
		return rec, err
	}
	detail, err := e.extractor.Detail(page.Body)
	if err != nil {
		return rec, err
	}
	return e.apply(rec, input{index: index, link: link, detail: detail}, e.staticStrategies(), true), nil
}

// FallbackTier renders the detail page of every incomplete record in a
// single browser session, one record at a time. The session is opened on the
// first record that needs it and closed once when the tier ends. Every
// candidate leaves with a non-empty name and price whether or not its
// render succeeded.
func (e *Engine) FallbackTier(ctx context.Context, batch []product.Record) ([]product.Record, Stats) {
	out := product.Clone(batch)
	var stats Stats

	var candidates []int
	for i, rec := range out {
		if e.Incomplete(rec) {
			candidates = append(candidates, i)
		}
	}
	stats.FallbackCandidates = len(candidates)
	if len(candidates) == 0 {
		return out, stats
	}

	if e.open == nil {
		e.logger.Info("Rendered fallback unavailable, skipping", zap.Int("candidates", len(candidates)))
		stats.FallbackSkipped = true
		for _, i := range candidates {
			out[i] = e.finalize(i, out[i])
		}
		return out, stats
	}

	var (
		session headless.Renderer
		openErr error
	)
	defer func() {
		if session == nil {
			return
		}
		if err := session.Close(); err != nil {
			e.logger.Warn("Closing browser session failed", zap.Error(err))
		}
	}()

	for _, i := range candidates {
		rec := out[i]
		if rec.DetailLink == "" || openErr != nil || ctx.Err() != nil {
			out[i] = e.finalize(i, rec)
			continue
		}
		if session == nil {
			session, openErr = e.open(ctx)
			if openErr != nil {
				session = nil
				stats.FallbackSkipped = true
				e.logger.Warn("Opening browser session failed", zap.Error(openErr))
				out[i] = e.finalize(i, rec)
				continue
			}
		}

		enriched, err := e.enrichRendered(ctx, session, i, rec)
		if err != nil {
			stats.RenderFailed++
			e.logger.Debug("Rendered fetch failed",
				zap.Int("index", i),
				zap.String("link", rec.DetailLink),
				zap.Error(err),
			)
			out[i] = e.finalize(i, rec)
			continue
		}
		stats.Rendered++
		out[i] = enriched
	}

	e.logger.Info("Fallback tier finished",
		zap.String("tier", "fallback"),
		zap.Int("candidates", stats.FallbackCandidates),
		zap.Int("rendered", stats.Rendered),
		zap.Int("failed", stats.RenderFailed),
	)
	return out, stats
}

func (e *Engine) enrichRendered(ctx context.Context, r headless.Renderer, index int, rec product.Record) (product.Record, error) {
	link := e.absolute(rec.DetailLink)
	page, err := r.Render(ctx, link, e.cfg.WaitSelector)
	if err != nil {
		return rec, err
	}
	detail, err := e.extractor.Rendered(page.Body)
	if err != nil {
		return rec, err
	}
	return e.apply(rec, input{index: index, link: link, detail: detail}, e.renderedStrategies(), false), nil
}
