package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/siteindex/internal/model"
)

// errChangesFound is returned by compare --fail-on-change when the two
// databases differ.
var errChangesFound = errors.New("databases differ")

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <old-db> <new-db>",
		Short: "Compare two crawl databases",
		Long: `Compare lists pages added, removed and changed between two crawl databases.

Pages are matched by path. A page is changed when its content hash differs.

Examples:
  # Compare last week's crawl with today's
  siteindex compare last-week.sqlite3 today.sqlite3

  # Markdown output for a pull request comment
  siteindex compare --markdown old.sqlite3 new.sqlite3

  # Exit with an error when anything changed
  siteindex compare --fail-on-change old.sqlite3 new.sqlite3`,
		Args: cobra.ExactArgs(2),
		RunE: runCompareCmd,
	}

	addFormatFlags(cmd)
	cmd.Flags().Bool("fail-on-change", false,
		"Exit with an error when the databases differ")

	return cmd
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	failOnChange, err := cmd.Flags().GetBool("fail-on-change")
	if err != nil {
		return err
	}
	// Validate format flags before opening anything.
	if _, err := newReportWriter(cmd, nil); err != nil {
		return err
	}

	setupLogger(cmd)

	cmp, err := compareDatabases(commandContext(cmd), args[0], args[1])
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
	if _, err := w.WriteComparison(cmp); err != nil {
		return err
	}

	if failOnChange && cmp.HasChanges() {
		return fmt.Errorf("%w: %d added, %d removed, %d changed",
			errChangesFound, len(cmp.Added), len(cmp.Removed), len(cmp.Changed))
	}
	return nil
}

// compareDatabases loads the path hashes of both databases concurrently
// and compares them.
func compareDatabases(ctx context.Context, oldPath, newPath string) (*model.Comparison, error) {
	var oldHashes, newHashes map[string]string

	g, ctx := errgroup.WithContext(ctx)
	load := func(path string, dst *map[string]string) func() error {
		return func() error {
			db, err := openExisting(path)
			if err != nil {
				return err
			}
			defer db.Close()

			hashes, err := db.PageHashes(ctx)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			*dst = hashes
			return nil
		}
	}
	g.Go(load(oldPath, &oldHashes))
	g.Go(load(newPath, &newHashes))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cmp := model.Compare(oldHashes, newHashes)
	cmp.Old = oldPath
	cmp.New = newPath
	return cmp, nil
}
