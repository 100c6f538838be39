package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-sync/internal/app"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Upsert the artifact into the remote catalog and verify the category",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			p, err := appInstance.NewPipeline(true)
			if err != nil {
				return err
			}
			res, err := p.Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			printSync(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func printSync(w io.Writer, res app.SyncResult) {
	s := res.Sync.Summary
	fmt.Fprintf(w, "Sync Summary (run %s): Created: %d, Updated: %d, Failed: %d\n",
		res.RunID, s.Created, s.Updated, s.Failed)
	fmt.Fprintln(w, res.Report.Render())
}
