package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-sync/internal/app"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Crawl and enrich the listing, then write the artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			p, err := appInstance.NewPipeline(false)
			if err != nil {
				return err
			}
			res, err := p.Ingest(cmd.Context())
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			printIngest(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printIngest(w io.Writer, res app.IngestResult) {
	fmt.Fprintf(w, "Ingested %d records from %d pages (%d duplicates, stop: %s)\n",
		len(res.Records), res.Crawl.Pages, res.Crawl.Duplicates, res.Crawl.StopReason)
	fmt.Fprintf(w, "Enrichment: visited %d, fetch failed %d, rendered %d of %d fallback candidates\n",
		res.Enrich.Visited, res.Enrich.FetchFailed, res.Enrich.Rendered, res.Enrich.FallbackCandidates)
	fmt.Fprintf(w, "Artifact: %s\n", res.ArtifactURI)
	if res.CSVURI != "" {
		fmt.Fprintf(w, "CSV export: %s\n", res.CSVURI)
	}
}
