// Package crawler walks the storefront's paginated listing and turns item
// blocks into deduplicated partial records.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-sync/internal/extract"
	"github.com/JakeFAU/catalog-sync/internal/fetcher"
	"github.com/JakeFAU/catalog-sync/internal/normalize"
	"github.com/JakeFAU/catalog-sync/internal/product"
)

// ErrFirstPageUnreachable is returned when the very first listing page
// cannot be fetched or parsed. Nothing else the crawler sees is fatal.
var ErrFirstPageUnreachable = errors.New("first listing page unreachable")

// Stop reasons reported in Result.
const (
	StopNoBlocks  = "no_blocks"
	StopNoNew     = "no_new_records"
	StopPageError = "page_error"
	StopMaxPages  = "max_pages"
	StopCanceled  = "canceled"
)

const defaultStartPage = 1

// Config holds the listing location.
type Config struct {
	ListingURL string
	BaseURL    string
	StartPage  int
	// MaxPages bounds the walk; zero means no bound.
	MaxPages int
}

// Result is the outcome of one crawl.
type Result struct {
	Records    []product.Record
	Pages      int
	Duplicates int
	StopReason string
}

// Crawler is the catalog crawler. It fetches one page at a time.
type Crawler struct {
	cfg       Config
	fetcher   fetcher.Fetcher
	extractor *extract.Extractor
	logger    *zap.Logger
}

// New builds a Crawler.
func New(cfg Config, f fetcher.Fetcher, e *extract.Extractor, logger *zap.Logger) (*Crawler, error) {
	if strings.TrimSpace(cfg.ListingURL) == "" {
		return nil, errors.New("listing url is required")
	}
	if f == nil {
		return nil, errors.New("fetcher is required")
	}
	if e == nil {
		e = extract.New(extract.Selectors{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StartPage <= 0 {
		cfg.StartPage = defaultStartPage
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.ListingURL
	}
	return &Crawler{cfg: cfg, fetcher: f, extractor: e, logger: logger}, nil
}

// PageURL returns the listing URL for page n.
func PageURL(listingURL string, n int) string {
	return strings.TrimRight(listingURL, "/") + "/" + strconv.Itoa(n)
}

// Crawl walks listing pages from the start page until a page has no item
// blocks, a page adds no new records, a page fails, or MaxPages is reached.
// Records are returned in order of first appearance.
func (c *Crawler) Crawl(ctx context.Context) (Result, error) {
	var res Result
	seen := make(map[string]struct{})

	for page := c.cfg.StartPage; ; page++ {
		if c.cfg.MaxPages > 0 && res.Pages >= c.cfg.MaxPages {
			res.StopReason = StopMaxPages
			break
		}
		if err := ctx.Err(); err != nil {
			res.StopReason = StopCanceled
			return res, fmt.Errorf("crawl canceled: %w", err)
		}

		url := PageURL(c.cfg.ListingURL, page)
		blocks, err := c.fetchBlocks(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				res.StopReason = StopCanceled
				return res, fmt.Errorf("crawl canceled: %w", ctx.Err())
			}
			if res.Pages == 0 {
				return res, fmt.Errorf("%w: %s: %w", ErrFirstPageUnreachable, url, err)
			}
			c.logger.Warn("Listing page failed, ending crawl", zap.Int("page", page), zap.String("url", url), zap.Error(err))
			res.StopReason = StopPageError
			break
		}
		res.Pages++

		if len(blocks) == 0 {
			c.logger.Info("No item blocks on page, stopping", zap.Int("page", page))
			res.StopReason = StopNoBlocks
			break
		}

		added := 0
		for _, b := range blocks {
			rec := c.toRecord(page, b)
			key := rec.Key()
			if _, dup := seen[key]; dup {
				res.Duplicates++
				if key == "" {
					c.logger.Debug("Block without link or name folded into earlier anonymous block",
						zap.Int("page", page),
						zap.String("price", rec.Price),
						zap.String("image", rec.ImageURL),
					)
				}
				continue
			}
			seen[key] = struct{}{}
			res.Records = append(res.Records, rec)
			added++
		}
		c.logger.Info("Listing page crawled",
			zap.Int("page", page),
			zap.Int("found", len(blocks)),
			zap.Int("new", added),
		)
		if added == 0 {
			res.StopReason = StopNoNew
			break
		}
	}

	c.logger.Info("Crawl finished",
		zap.Int("records", len(res.Records)),
		zap.Int("pages", res.Pages),
		zap.Int("duplicates", res.Duplicates),
		zap.String("stop_reason", res.StopReason),
	)
	return res, nil
}

func (c *Crawler) fetchBlocks(ctx context.Context, url string) ([]extract.Block, error) {
	page, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return c.extractor.Listing(page.Body)
}

func (c *Crawler) toRecord(page int, b extract.Block) product.Record {
	if len(b.Missing) > 0 {
		c.logger.Debug("Item block is missing fields",
			zap.Int("page", page),
			zap.String("link", b.Link),
			zap.Strings("missing", b.Missing),
		)
	}
	imageURL, _ := normalize.RepairImagePath(c.cfg.BaseURL, b.Image)
	return product.Record{
		Name:       b.Name,
		Price:      b.Price,
		ImageURL:   imageURL,
		SourcePath: b.Image,
		DetailLink: b.Link,
	}
}
