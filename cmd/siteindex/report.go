package main

import (
	"github.com/spf13/cobra"

	"github.com/nao1215/siteindex/internal/config"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <db>",
		Short: "Summarize a crawl database",
		Long: `Report summarizes a crawl database: the number of pages, the component
inventory, the most linked URLs, fetch errors, redirects and crawl runs.

Examples:
  # Text report on the terminal
  siteindex report crawl.sqlite3

  # Markdown report written to a file
  siteindex report crawl.sqlite3 --markdown -o reports/site.md

  # JSON for other tools
  siteindex report crawl.sqlite3 --json`,
		Args: cobra.ExactArgs(1),
		RunE: runReportCmd,
	}

	addFormatFlags(cmd)
	cmd.Flags().IntP("top", "n", config.DefaultTopN,
		"Number of components and links listed (0 lists all)")

	return cmd
}

func runReportCmd(cmd *cobra.Command, args []string) error {
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	setupLogger(cmd)

	db, err := openExisting(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := db.Summarize(commandContext(cmd), top)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(cmd, outputPath)
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // close error after a successful write is not actionable

	w, err := newReportWriter(cmd, out)
	if err != nil {
		return err
	}
	_, err = w.WriteSummary(summary)
	return err
}
