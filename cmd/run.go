package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Ingest then sync in one invocation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			p, err := appInstance.NewPipeline(true)
			if err != nil {
				return err
			}
			ing, err := p.Ingest(cmd.Context())
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			printIngest(cmd.OutOrStdout(), ing)
			res, err := p.Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync: %w", err)
			}
			printSync(cmd.OutOrStdout(), res)
			return nil
		},
	}
}
