// Package catalogsync upserts a normalized batch into the remote catalog.
//
// The category is resolved once per run. Each record is then looked up by
// exact name and either updated or created; a record that fails is counted
// and the run moves on. Nothing is retried within a run.
package catalogsync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-sync/internal/product"
	"github.com/JakeFAU/catalog-sync/internal/woo"
)

// ErrCategoryUnresolved means no category id could be found or created.
var ErrCategoryUnresolved = errors.New("target category could not be resolved")

const defaultBatchSize = 30

// Catalog is the subset of the remote catalog the engine writes to.
type Catalog interface {
	FindCategory(ctx context.Context, name string) (woo.Category, error)
	CreateCategory(ctx context.Context, name string) (woo.Category, error)
	SearchProducts(ctx context.Context, term string) ([]woo.Product, error)
	CreateProduct(ctx context.Context, p woo.Product) (woo.Product, error)
	UpdateProduct(ctx context.Context, id int64, p woo.Product) (woo.Product, error)
}

// Action is the per-record result tag.
type Action string

// Outcome actions.
const (
	Created Action = "created"
	Updated Action = "updated"
	Failed  Action = "failed"
)

// Outcome is the result for one record.
type Outcome struct {
	Name     string
	Action   Action
	RemoteID int64
	Reason   string
}

// Summary holds run totals.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Total returns the number of records processed.
func (s Summary) Total() int {
	return s.Created + s.Updated + s.Failed
}

func (s *Summary) add(o Outcome) {
	switch o.Action {
	case Created:
		s.Created++
	case Updated:
		s.Updated++
	default:
		s.Failed++
	}
}

// Result is what Sync returns.
type Result struct {
	Category product.CategoryRef
	Outcomes []Outcome
	Summary  Summary
}

// Config controls the engine.
type Config struct {
	Category            string
	BatchSize           int
	DescriptionTemplate string
}

// Engine is the catalog sync engine. Records are processed one at a time.
type Engine struct {
	cfg     Config
	catalog Catalog
	logger  *zap.Logger
}

// New builds an Engine.
func New(cfg Config, catalog Catalog, logger *zap.Logger) (*Engine, error) {
	if strings.TrimSpace(cfg.Category) == "" {
		return nil, errors.New("target category is required")
	}
	if catalog == nil {
		return nil, errors.New("catalog client is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.DescriptionTemplate == "" {
		cfg.DescriptionTemplate = product.DefaultDescriptionTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, catalog: catalog, logger: logger}, nil
}

// ResolveCategory finds the target category by exact name, creating it when
// absent. A conflict on create is resolved to the existing id.
func (e *Engine) ResolveCategory(ctx context.Context) (product.CategoryRef, error) {
	ref := product.CategoryRef{Name: e.cfg.Category}

	cat, err := e.catalog.FindCategory(ctx, ref.Name)
	switch {
	case err == nil:
		ref.RemoteID = cat.ID
		e.logger.Info("Found existing category", zap.String("category", ref.Name), zap.Int64("id", ref.RemoteID))
		return ref, nil
	case errors.Is(err, woo.ErrNotFound):
	default:
		e.logger.Warn("Listing categories failed, trying create", zap.String("category", ref.Name), zap.Error(err))
	}

	created, err := e.catalog.CreateCategory(ctx, ref.Name)
	if err == nil && created.ID > 0 {
		ref.RemoteID = created.ID
		e.logger.Info("Created category", zap.String("category", ref.Name), zap.Int64("id", ref.RemoteID))
		return ref, nil
	}
	var se *woo.StatusError
	if errors.Is(err, woo.ErrTermExists) && errors.As(err, &se) && se.ResourceID > 0 {
		ref.RemoteID = se.ResourceID
		e.logger.Info("Category already exists", zap.String("category", ref.Name), zap.Int64("id", ref.RemoteID))
		return ref, nil
	}
	if err == nil {
		err = errors.New("create returned no id")
	}
	return ref, fmt.Errorf("%w: %q: %w", ErrCategoryUnresolved, ref.Name, err)
}

// Sync upserts every record in batch. Per-record failures are reported in
// the result; only an unresolvable category or a canceled context return an
// error.
func (e *Engine) Sync(ctx context.Context, batch []product.Record) (Result, error) {
	cat, err := e.ResolveCategory(ctx)
	res := Result{Category: cat, Outcomes: make([]Outcome, 0, len(batch))}
	if err != nil {
		return res, err
	}

	for start := 0; start < len(batch); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(batch))
		var bs Summary
		for _, rec := range batch[start:end] {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("sync canceled: %w", err)
			}
			o := e.upsert(ctx, cat, rec)
			res.Outcomes = append(res.Outcomes, o)
			res.Summary.add(o)
			bs.add(o)
		}
		e.logger.Info("Batch synced",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("created", bs.Created),
			zap.Int("updated", bs.Updated),
			zap.Int("failed", bs.Failed),
		)
	}

	e.logger.Info("Sync finished",
		zap.String("category", cat.Name),
		zap.Int("created", res.Summary.Created),
		zap.Int("updated", res.Summary.Updated),
		zap.Int("failed", res.Summary.Failed),
	)
	return res, nil
}

func (e *Engine) upsert(ctx context.Context, cat product.CategoryRef, rec product.Record) Outcome {
	out := Outcome{Name: rec.Name}
	if strings.TrimSpace(rec.Name) == "" {
		return e.fail(out, rec, errors.New("record has no name"))
	}

	existingID, err := e.findExisting(ctx, rec.Name)
	if err != nil {
		return e.fail(out, rec, fmt.Errorf("lookup: %w", err))
	}

	payload := e.payload(cat, rec)
	if existingID > 0 {
		p, err := e.catalog.UpdateProduct(ctx, existingID, payload)
		if err != nil {
			return e.fail(out, rec, fmt.Errorf("update %d: %w", existingID, err))
		}
		out.Action, out.RemoteID = Updated, pick(p.ID, existingID)
	} else {
		p, err := e.catalog.CreateProduct(ctx, payload)
		if err != nil {
			return e.fail(out, rec, fmt.Errorf("create: %w", err))
		}
		out.Action, out.RemoteID = Created, p.ID
	}
	e.logger.Debug("Record synced",
		zap.String("name", rec.Name),
		zap.String("outcome", string(out.Action)),
		zap.Int64("id", out.RemoteID),
	)
	return out
}

// findExisting filters the substring search down to an exact name match.
func (e *Engine) findExisting(ctx context.Context, name string) (int64, error) {
	hits, err := e.catalog.SearchProducts(ctx, name)
	if err != nil {
		return 0, err
	}
	for _, h := range hits {
		if h.Name == name {
			return h.ID, nil
		}
	}
	return 0, nil
}

func (e *Engine) payload(cat product.CategoryRef, rec product.Record) woo.Product {
	p := woo.Product{
		Name:         rec.Name,
		Type:         product.ItemTypeSimple,
		RegularPrice: strconv.FormatInt(rec.NormalizedPrice, 10),
		Description:  product.Description(e.cfg.DescriptionTemplate, rec),
		Categories:   []woo.CategoryLink{{ID: cat.RemoteID}},
	}
	if rec.ImageURL != "" {
		p.Images = []woo.Image{{Src: rec.ImageURL}}
	}
	return p
}

func (e *Engine) fail(out Outcome, rec product.Record, err error) Outcome {
	out.Action = Failed
	out.Reason = err.Error()
	e.logger.Warn("Record sync failed",
		zap.String("name", rec.Name),
		zap.String("link", rec.DetailLink),
		zap.String("outcome", string(Failed)),
		zap.Error(err),
	)
	return out
}

func pick(a, b int64) int64 {
	if a > 0 {
		return a
	}
	return b
}
