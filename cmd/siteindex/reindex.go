package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewReindexCmd creates the reindex command.
func NewReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <db>",
		Short: "Rebuild the full-text search index",
		Long: `Reindex rebuilds the full-text index from the stored pages.

The index is kept up to date on every write. Rebuilding is only needed
after the pages table was edited outside siteindex.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(cmd)

			db, err := openExisting(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := commandContext(cmd)
			if err := db.RebuildSearchIndex(ctx); err != nil {
				return err
			}
			n, err := db.Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt search index for %s pages\n", humanize.Comma(int64(n)))
			return nil
		},
	}
}
