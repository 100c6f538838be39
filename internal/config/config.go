// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-sync/internal/extract"
	"github.com/JakeFAU/catalog-sync/internal/normalize"
	"github.com/JakeFAU/catalog-sync/internal/product"
)

const (
	envPrefix  = "CATALOG"
	configName = "catalog-sync"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig        `mapstructure:"site"`
	HTTP      HTTPConfig        `mapstructure:"http"`
	Selectors extract.Selectors `mapstructure:"selectors"`
	Enrich    EnrichConfig      `mapstructure:"enrich"`
	Headless  HeadlessConfig    `mapstructure:"headless"`
	Catalog   CatalogConfig     `mapstructure:"catalog"`
	Sync      SyncConfig        `mapstructure:"sync"`
	Artifact  ArtifactConfig    `mapstructure:"artifact"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
	RunStore  RunStoreConfig    `mapstructure:"runstore"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
}

// SiteConfig locates the storefront.
type SiteConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	ListingURL           string `mapstructure:"listing_url"`
	StartPage            int    `mapstructure:"start_page"`
	MaxPages             int    `mapstructure:"max_pages"`
	PlaceholderImagePath string `mapstructure:"placeholder_image_path"`
}

// HTTPConfig configures the static page fetcher.
type HTTPConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// EnrichConfig controls the enrichment tiers.
type EnrichConfig struct {
	Workers             int    `mapstructure:"workers"`
	PlaceholderName     string `mapstructure:"placeholder_name"`
	PriceSentinel       string `mapstructure:"price_sentinel"`
	SyntheticNamePrefix string `mapstructure:"synthetic_name_prefix"`
	LargeImageMarker    string `mapstructure:"large_image_marker"`
}

// HeadlessConfig configures the rendered fallback browser.
type HeadlessConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	ExecPath    string        `mapstructure:"exec_path"`
}

// CatalogConfig points at the remote catalog API.
type CatalogConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	ConsumerKey       string        `mapstructure:"consumer_key"`
	ConsumerSecret    string        `mapstructure:"consumer_secret"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	PageSize          int           `mapstructure:"page_size"`
	QueryStringAuth   bool          `mapstructure:"query_string_auth"`
}

// SyncConfig controls the upsert run.
type SyncConfig struct {
	Category            string   `mapstructure:"category"`
	BatchSize           int      `mapstructure:"batch_size"`
	CurrencyTokens      []string `mapstructure:"currency_tokens"`
	DescriptionTemplate string   `mapstructure:"description_template"`
}

// ArtifactConfig locates the handoff file.
type ArtifactConfig struct {
	Provider    string `mapstructure:"provider"`
	BaseDir     string `mapstructure:"base_dir"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	Path        string `mapstructure:"path"`
	CSVPath     string `mapstructure:"csv_path"`
	CSVCategory string `mapstructure:"csv_category"`
}

// LoggingConfig toggles zap development features and file rotation.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// MetricsConfig controls the Pushgateway push.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// RunStoreConfig controls the run ledger.
type RunStoreConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from defaults, a config file and the environment.
// With an empty path, a file named catalog-sync.{yaml,json,toml} is looked up
// in the working directory and then $HOME/.catalog-sync; finding none is not
// an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.catalog-sync")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	sel := extract.DefaultSelectors()

	v.SetDefault("site.base_url", "https://omayaclass.com")
	v.SetDefault("site.listing_url", "https://omayaclass.com/Products/103/Ar")
	v.SetDefault("site.start_page", 1)
	v.SetDefault("site.max_pages", 0)
	v.SetDefault("site.placeholder_image_path", normalize.DefaultPlaceholderPath)
	v.SetDefault("http.user_agent", "Mozilla/5.0")
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("selectors.block", sel.Block)
	v.SetDefault("selectors.name", sel.Name)
	v.SetDefault("selectors.price", sel.Price)
	v.SetDefault("selectors.link", sel.Link)
	v.SetDefault("selectors.image", sel.Image)
	v.SetDefault("selectors.large_image", sel.LargeImage)
	v.SetDefault("selectors.meta_title", sel.MetaTitle)
	v.SetDefault("selectors.detail_price", sel.DetailPrice)
	v.SetDefault("selectors.rendered_wait", sel.RenderedWait)
	v.SetDefault("selectors.rendered_name", sel.RenderedName)
	v.SetDefault("selectors.rendered_name_fallback", sel.RenderedNameFallback)
	v.SetDefault("selectors.title_separator", sel.TitleSeparator)
	v.SetDefault("enrich.workers", 5)
	v.SetDefault("enrich.placeholder_name", "Unknown Product")
	v.SetDefault("enrich.price_sentinel", "0")
	v.SetDefault("enrich.synthetic_name_prefix", "Cake Product")
	v.SetDefault("enrich.large_image_marker", "larg")
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.wait_timeout", 15*time.Second)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("catalog.timeout", 20*time.Second)
	v.SetDefault("catalog.requests_per_second", 0)
	v.SetDefault("catalog.page_size", 100)
	v.SetDefault("catalog.query_string_auth", false)
	v.SetDefault("sync.category", "Omaya Products")
	v.SetDefault("sync.batch_size", 30)
	v.SetDefault("sync.currency_tokens", normalize.DefaultCurrencyTokens)
	v.SetDefault("sync.description_template", product.DefaultDescriptionTemplate)
	v.SetDefault("artifact.provider", "local")
	v.SetDefault("artifact.base_dir", ".")
	v.SetDefault("artifact.path", "products.json")
	v.SetDefault("artifact.csv_path", "")
	v.SetDefault("artifact.csv_category", "Omaya Products")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("metrics.job", "catalog_sync")
	v.SetDefault("runstore.table", "sync_runs")
	v.SetDefault("runstore.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.consumer_key", "")
	v.SetDefault("catalog.consumer_secret", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("runstore.dsn", "")
	v.SetDefault("artifact.bucket", "")
	v.SetDefault("artifact.prefix", "")
	v.SetDefault("logging.file", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.Site.ListingURL == "" {
		return fmt.Errorf("site.listing_url is required")
	}
	if c.Site.StartPage < 1 {
		return fmt.Errorf("site.start_page must be >= 1")
	}
	if c.Site.MaxPages < 0 {
		return fmt.Errorf("site.max_pages must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Enrich.Workers <= 0 {
		return fmt.Errorf("enrich.workers must be > 0")
	}
	if c.Headless.Enabled && c.Headless.WaitTimeout <= 0 {
		return fmt.Errorf("headless.wait_timeout must be > 0 when headless is enabled")
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be > 0")
	}
	if c.Catalog.PageSize < 1 || c.Catalog.PageSize > 100 {
		return fmt.Errorf("catalog.page_size must be between 1 and 100")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be > 0")
	}
	switch c.Artifact.Provider {
	case "local":
	case "gcs":
		if c.Artifact.Bucket == "" {
			return fmt.Errorf("artifact.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("artifact.provider %q is not supported", c.Artifact.Provider)
	}
	if c.Artifact.Path == "" {
		return fmt.Errorf("artifact.path is required")
	}
	return nil
}

// ValidateCatalog checks the settings only sync commands need.
func (c Config) ValidateCatalog() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if c.Catalog.ConsumerKey == "" || c.Catalog.ConsumerSecret == "" {
		return fmt.Errorf("catalog.consumer_key and catalog.consumer_secret are required")
	}
	if strings.TrimSpace(c.Sync.Category) == "" {
		return fmt.Errorf("sync.category is required")
	}
	return nil
}
