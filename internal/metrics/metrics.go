// Package metrics exposes Prometheus collectors for the catalog pipeline.
//
// The pipeline is a batch job, so collectors live on their own registry and
// are pushed to a Pushgateway at the end of a run instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Collectors holds every pipeline metric.
type Collectors struct {
	registry *prometheus.Registry

	crawlerPagesTotal        *prometheus.CounterVec
	crawlerRecordsTotal      prometheus.Counter
	crawlerDuplicatesTotal   prometheus.Counter
	enrichRecordsTotal       *prometheus.CounterVec
	syncOutcomesTotal        *prometheus.CounterVec
	reconcileDiscrepancies   *prometheus.GaugeVec
	stageDurationSeconds     *prometheus.HistogramVec
	lastSuccessTimestampSecs prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collectors{
		registry: reg,
		crawlerPagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawler_pages_total",
				Help: "Total number of listing pages crawled, labeled by site and status.",
			},
			[]string{"site", "status"},
		),
		crawlerRecordsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_crawler_records_total",
			Help: "Unique records collected from listing pages.",
		}),
		crawlerDuplicatesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "catalog_crawler_duplicates_total",
			Help: "Listing blocks dropped as duplicates.",
		}),
		enrichRecordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_enrich_records_total",
				Help: "Records handled by each enrichment tier, labeled by tier and result.",
			},
			[]string{"tier", "result"},
		),
		syncOutcomesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_sync_outcomes_total",
				Help: "Per-record sync outcomes, labeled by action.",
			},
			[]string{"action"},
		),
		reconcileDiscrepancies: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_reconcile_discrepancies",
				Help: "Names missing from or extra in the target category after the last run.",
			},
			[]string{"kind"},
		),
		stageDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_stage_duration_seconds",
				Help:    "Histogram of pipeline stage durations.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		lastSuccessTimestampSecs: f.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without error.",
		}),
	}
}

// Registry returns the registry backing the collectors.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveCrawl records a finished crawl.
func (c *Collectors) ObserveCrawl(site string, pages, records, duplicates int, stop string) {
	c.crawlerPagesTotal.WithLabelValues(SanitizeSite(site), stop).Add(float64(pages))
	c.crawlerRecordsTotal.Add(float64(records))
	c.crawlerDuplicatesTotal.Add(float64(duplicates))
}

// ObserveEnrich adds n to the tier/result counter.
func (c *Collectors) ObserveEnrich(tier, result string, n int) {
	if n <= 0 {
		return
	}
	c.enrichRecordsTotal.WithLabelValues(tier, result).Add(float64(n))
}

// ObserveSync records sync totals.
func (c *Collectors) ObserveSync(created, updated, failed int) {
	c.syncOutcomesTotal.WithLabelValues("created").Add(float64(created))
	c.syncOutcomesTotal.WithLabelValues("updated").Add(float64(updated))
	c.syncOutcomesTotal.WithLabelValues("failed").Add(float64(failed))
}

// ObserveReconcile sets the discrepancy gauges.
func (c *Collectors) ObserveReconcile(missing, extra int) {
	c.reconcileDiscrepancies.WithLabelValues("missing").Set(float64(missing))
	c.reconcileDiscrepancies.WithLabelValues("extra").Set(float64(extra))
}

// ObserveStage records how long a stage took.
func (c *Collectors) ObserveStage(stage string, d time.Duration) {
	c.stageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// MarkSuccess stamps the last-success gauge.
func (c *Collectors) MarkSuccess(at time.Time) {
	c.lastSuccessTimestampSecs.Set(float64(at.Unix()))
}

// Push sends every collector to the Pushgateway at gatewayURL under job.
func (c *Collectors) Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return fmt.Errorf("pushgateway url is required")
	}
	if err := push.New(gatewayURL, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
