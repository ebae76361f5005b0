package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/siteindex/internal/database"
	"github.com/nao1215/siteindex/internal/model"
	"github.com/nao1215/siteindex/internal/report"
)

// Search modes.
const (
	searchText      = "text"
	searchComponent = "component"
	searchLink      = "link"
	searchTitle     = "title"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <db> <text|component|link|title> <query>",
		Short: "Find pages in a crawl database",
		Long: `Search prints the paths of stored pages matching a query.

Modes:
  text       full-text search of titles and visible text, best match first
  component  pages using a component whose name contains the query
  link       pages linking to a URL containing the query
  title      pages whose title contains the query

Examples:
  siteindex search crawl.sqlite3 text "mortgage rates"
  siteindex search crawl.sqlite3 component o-hero
  siteindex search crawl.sqlite3 link /about/ --json`,
		Args: cobra.ExactArgs(3),
		RunE: runSearchCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output results as JSON")
	cmd.Flags().IntP("limit", "l", database.DefaultSearchLimit,
		"Maximum number of full-text results")

	return cmd
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	dbPath, mode, query := args[0], strings.ToLower(args[1]), args[2]

	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	switch mode {
	case searchText, searchComponent, searchLink, searchTitle:
	default:
		return fmt.Errorf("%w: %q", errUnknownSearchMode, args[1])
	}

	setupLogger(cmd)

	db, err := openExisting(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if mode == searchText {
		hits, err := db.Search(ctx, query, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(hits)
			return err
		}
		writeHits(out, hits)
		return nil
	}

	var pages []model.PageSummary
	switch mode {
	case searchComponent:
		pages, err = db.SearchComponents(ctx, query)
	case searchLink:
		pages, err = db.SearchLinks(ctx, query)
	case searchTitle:
		pages, err = db.SearchTitle(ctx, query)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(pages)
		return err
	}
	for _, p := range pages {
		fmt.Fprintln(out, p.Path)
	}
	return nil
}

func writeHits(w io.Writer, hits []model.SearchHit) {
	for _, h := range hits {
		fmt.Fprintln(w, h.Path)
		if h.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", h.Snippet)
		}
	}
}
