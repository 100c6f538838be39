package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-sync/internal/app"
	"github.com/JakeFAU/catalog-sync/internal/clock"
	"github.com/JakeFAU/catalog-sync/internal/config"
	collyfetcher "github.com/JakeFAU/catalog-sync/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-sync/internal/hash/sha256"
	"github.com/JakeFAU/catalog-sync/internal/id/uuid"
	"github.com/JakeFAU/catalog-sync/internal/metrics"
	"github.com/JakeFAU/catalog-sync/internal/product"
	"github.com/JakeFAU/catalog-sync/internal/publisher"
	publishermemory "github.com/JakeFAU/catalog-sync/internal/publisher/memory"
	"github.com/JakeFAU/catalog-sync/internal/runstore"
	"github.com/JakeFAU/catalog-sync/internal/storage/memory"
	"github.com/JakeFAU/catalog-sync/internal/woo"
	"github.com/JakeFAU/catalog-sync/internal/woo/wootest"
)

const listingBlock = `
<div class="block-stl2">
  <div class="img-holder"><img src="%s"></div>
  <div class="text-block"><h3>%s</h3><p class="price"><span>%s</span></p></div>
  <div class="btn-sec"><a class="btn4" href="%s">Details</a></div>
</div>`

// newStorefront serves one listing page with a duplicate block, an empty
// second page, and two detail pages.
func newStorefront(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/Products/1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>")
		fmt.Fprintf(w, listingBlock, "./img/uploads1/thumb/a.jpg", "Chocolate Cake", "27,000 ل.س", "/product/1/chocolate-cake")
		fmt.Fprintf(w, listingBlock, "./img/uploads1/thumb/b.png", "Vanilla Cake", "0", "/product/2/vanilla-cake")
		fmt.Fprintf(w, listingBlock, "./img/uploads1/thumb/a.jpg", "Chocolate Cake", "27,000 ل.س", "/product/1/chocolate-cake")
		fmt.Fprint(w, "</body></html>")
	})
	mux.HandleFunc("/Products/2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body><p>No products</p></body></html>")
	})
	mux.HandleFunc("/product/1/chocolate-cake", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Chocolate Cake | Omaya</title>
<meta property="og:title" content="Chocolate Cake"></head>
<body><img src="/img/uploads1/larg/a.jpg"><div class="price"><span>27,000 ل.س</span></div></body></html>`)
	})
	mux.HandleFunc("/product/2/vanilla-cake", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Vanilla Cake | Omaya</title></head>
<body><div class="price"><span>12,500 ل.س</span></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type recordedRun struct {
	id       string
	category string
	status   runstore.Status
	totals   runstore.Totals
	errMsg   *string
}

type fakeRuns struct {
	mu   sync.Mutex
	runs map[string]*recordedRun
	err  error
}

func newFakeRuns() *fakeRuns { return &fakeRuns{runs: map[string]*recordedRun{}} }

func (f *fakeRuns) StartRun(_ context.Context, id, category string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs[id] = &recordedRun{id: id, category: category, status: runstore.StatusRunning}
	return nil
}

func (f *fakeRuns) CompleteRun(_ context.Context, id string, _ time.Time, status runstore.Status, totals runstore.Totals, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	r, ok := f.runs[id]
	if !ok {
		return errors.New("unknown run")
	}
	r.status, r.totals, r.errMsg = status, totals, errMsg
	return nil
}

func (f *fakeRuns) Close() {}

func (f *fakeRuns) only(t *testing.T) recordedRun {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.runs, 1)
	for _, r := range f.runs {
		return *r
	}
	return recordedRun{}
}

type fixture struct {
	cfg       config.Config
	store     *memory.BlobStore
	catalog   *wootest.Server
	runs      *fakeRuns
	publisher *publishermemory.Publisher
	metrics   *metrics.Collectors
	pipeline  *app.Pipeline
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	site := newStorefront(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Site.BaseURL = site.URL
	cfg.Site.ListingURL = site.URL + "/Products"
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Headless.Enabled = false
	cfg.Sync.Category = "Omaya Products"
	cfg.PubSub.Topic = "sync-runs"
	for _, m := range mutate {
		m(&cfg)
	}

	fetch, err := collyfetcher.New(collyfetcher.Config{Timeout: cfg.HTTP.Timeout, Parallelism: cfg.Enrich.Workers})
	require.NoError(t, err)

	catalog := wootest.NewServer(t)
	client, err := woo.NewClient(woo.Config{BaseURL: catalog.URL, ConsumerKey: "ck", ConsumerSecret: "cs", Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)

	f := &fixture{
		cfg:       cfg,
		store:     memory.NewBlobStore(),
		catalog:   catalog,
		runs:      newFakeRuns(),
		publisher: publishermemory.New(),
		metrics:   metrics.New(),
	}
	f.pipeline, err = app.NewPipeline(cfg, app.Deps{
		Fetcher:   fetch,
		Catalog:   client,
		Artifacts: f.store,
		Runs:      f.runs,
		Publisher: f.publisher,
		Metrics:   f.metrics,
		IDs:       uuid.New(),
		Clock:     clock.Fixed(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)),
		Hasher:    sha256.New(),
	}, nil)
	require.NoError(t, err)
	return f
}

func TestIngestThenSync(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	ing, err := f.pipeline.Ingest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ing.Crawl.Pages)
	assert.Equal(t, 1, ing.Crawl.Duplicates)
	assert.Equal(t, 2, ing.Enrich.Visited)
	require.Len(t, ing.Records, 2)

	choc, van := ing.Records[0], ing.Records[1]
	assert.Equal(t, "Chocolate Cake", choc.Name)
	assert.Equal(t, f.cfg.Site.BaseURL+"/img/uploads1/larg/a.jpg", choc.ImageURL)
	assert.Equal(t, "./img/uploads1/thumb/a.jpg", choc.SourcePath)
	assert.Equal(t, int64(27000), choc.NormalizedPrice)
	assert.Equal(t, "12,500 ل.س", van.Price, "sentinel price is filled from the detail page")
	assert.Equal(t, int64(12500), van.NormalizedPrice)
	assert.Equal(t, f.cfg.Site.BaseURL+"/img/uploads1/thumb/b.png", van.ImageURL)

	data, err := f.store.GetObject(ctx, "products.json")
	require.NoError(t, err)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.ElementsMatch(t, []string{"name", "price", "image_url", "original_image_path", "product_link"}, keys(raw[0]))

	res, err := f.pipeline.Sync(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Len(t, res.ArtifactDigest, 64)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 2, res.Sync.Summary.Created)
	assert.True(t, res.Report.Clean(), res.Report.Render())
	assert.Empty(t, res.Report.Missing)
	assert.Empty(t, res.Report.Extra)

	products := f.catalog.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "12500", products[1].RegularPrice)

	run := f.runs.only(t)
	assert.Equal(t, runstore.StatusSucceeded, run.status)
	assert.Equal(t, runstore.Totals{Records: 2, Created: 2}, run.totals)
	assert.Nil(t, run.errMsg)

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sync-runs", msgs[0].Topic)
	event, ok := msgs[0].Payload.(publisher.RunCompleted)
	require.True(t, ok)
	assert.Equal(t, res.RunID, event.RunID)
	assert.Equal(t, 2, event.Created)

	n, err := testutil.GatherAndCount(f.metrics.Registry(), "catalog_last_success_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncTwiceUpdates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx)
	require.NoError(t, err)

	_, err = f.pipeline.Sync(ctx)
	require.NoError(t, err)
	second, err := f.pipeline.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sync.Summary.Updated)
	assert.Zero(t, second.Sync.Summary.Created)
	assert.Len(t, f.catalog.Products(), 2)
}

func TestIngestWritesCSVExport(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *config.Config) { c.Artifact.CSVPath = "products.csv" })
	ing, err := f.pipeline.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory://products.csv", ing.CSVURI)

	data, err := f.store.GetObject(context.Background(), "products.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Name,Type,Regular price,Description,Categories,Images", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Chocolate Cake,simple,27000,"), lines[1])
	assert.Contains(t, lines[1], ",Omaya Products,")
	assert.Equal(t, product.CSVContentType, f.store.ContentType("products.csv"))
}

func TestSyncMissingArtifactIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.pipeline.Sync(context.Background())
	require.ErrorIs(t, err, app.ErrArtifactUnreadable)

	run := f.runs.only(t)
	assert.Equal(t, runstore.StatusFailed, run.status)
	require.NotNil(t, run.errMsg)
	assert.Contains(t, *run.errMsg, "products.json")
	assert.Zero(t, f.catalog.Calls("POST products"))
}

func TestSyncSideOutputFailuresAreLogged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pipeline.Ingest(ctx)
	require.NoError(t, err)

	f.runs.err = errors.New("ledger down")
	f.publisher.FailWith(errors.New("broker down"))

	res, err := f.pipeline.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sync.Summary.Created)
}

func TestIngestFirstPageUnreachable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(c *config.Config) { c.Site.ListingURL = c.Site.BaseURL + "/Missing" })
	_, err := f.pipeline.Ingest(context.Background())
	require.Error(t, err)
	_, getErr := f.store.GetObject(context.Background(), "products.json")
	assert.Error(t, getErr, "no artifact is written")
}

func TestNewPipelineValidation(t *testing.T) {
	t.Parallel()

	_, err := app.NewPipeline(config.Config{}, app.Deps{}, nil)
	require.Error(t, err)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
