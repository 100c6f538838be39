// Package cmd defines and implements the CLI commands for the catalog-sync executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-sync/internal/app"
	"github.com/JakeFAU/catalog-sync/internal/config"
	"github.com/JakeFAU/catalog-sync/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	category   string
	artifact   string

	// app is kept so Execute can close it when RunE fails, since cobra skips
	// the post-run hook in that case.
	app *app.App
}

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = app.NewApp

// newLogger builds the process logger from the loaded config.
var newLogger = func(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})
}

// newRootCmd creates and configures the root command.
func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog-sync",
		Short: "Crawl a storefront catalog and mirror it into a WooCommerce store.",
		Long: `catalog-sync crawls the storefront's paginated product listing, fills in
missing fields from detail pages, and writes a JSON artifact. The sync stage
upserts that artifact into a WooCommerce category and reports any drift.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config, logger and services are built once per invocation here.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opts.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
				opts.app = nil
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.category, "category", "", "target category (overrides sync.category)")
	cmd.PersistentFlags().StringVar(&opts.artifact, "artifact", "", "artifact path (overrides artifact.path)")

	cmd.AddCommand(newIngestCmd(), newSyncCmd(), newRunCmd())
	return cmd
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if opts.category != "" {
		cfg.Sync.Category = opts.category
	}
	if opts.artifact != "" {
		cfg.Artifact.Path = opts.artifact
	}
	return cfg, nil
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. Only top-level failures reach here and
// they exit non-zero; per-record failures are part of the printed summary.
func Execute() {
	opts := &rootOptions{}
	if err := newRootCmd(opts).ExecuteContext(context.Background()); err != nil {
		if opts.app != nil {
			opts.app.Logger.Error("Command execution failed", zap.Error(err))
			opts.app.Close()
		}
		fmt.Fprintf(os.Stderr, "catalog-sync: %v\n", err)
		os.Exit(1)
	}
}
