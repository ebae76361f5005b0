package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/siteindex/internal/model"
)

// SimpleWriter outputs human-readable text reports.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether empty sections are shown.
	showEmpty bool

	// verbose lists every error and redirect instead of the first
	// DefaultListLimit.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables complete error and redirect lists.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteSummary outputs the crawl summary in human-readable format.
func (w *SimpleWriter) WriteSummary(s *model.Summary) (int, error) {
	var sb strings.Builder

	w.writeRule(&sb, "=")
	sb.WriteString("                         SITEINDEX REPORT\n")
	w.writeRule(&sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Database:       %s\n", s.Database)
	fmt.Fprintf(&sb, "Generated:      %s\n", formatTime(s.GeneratedAt))
	fmt.Fprintf(&sb, "Pages:          %s\n", humanize.Comma(int64(s.Pages)))
	fmt.Fprintf(&sb, "Components:     %d\n", len(s.Components))
	if run := s.LatestCrawl(); run != nil {
		fmt.Fprintf(&sb, "Last crawl:     %s (%s, %s)\n", run.StartURL, run.Status, formatTime(run.StartedAt))
	}
	sb.WriteString("\n")

	w.writeUsage(&sb, "COMPONENTS", s.Components)
	w.writeUsage(&sb, "TOP LINKS", s.Links)
	w.writeErrors(&sb, s.Errors)
	w.writeRedirects(&sb, s.Redirects)
	w.writeCrawls(&sb, s.Crawls)

	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// WriteComparison outputs a comparison in human-readable format.
func (w *SimpleWriter) WriteComparison(c *model.Comparison) (int, error) {
	var sb strings.Builder

	w.writeRule(&sb, "=")
	sb.WriteString("                         SITEINDEX COMPARISON\n")
	w.writeRule(&sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Old:        %s\n", c.Old)
	fmt.Fprintf(&sb, "New:        %s\n", c.New)
	fmt.Fprintf(&sb, "Added:      %d\n", len(c.Added))
	fmt.Fprintf(&sb, "Removed:    %d\n", len(c.Removed))
	fmt.Fprintf(&sb, "Changed:    %d\n", len(c.Changed))
	fmt.Fprintf(&sb, "Unchanged:  %d\n", c.Same)
	sb.WriteString("\n")

	if !c.HasChanges() {
		sb.WriteString("No differences found.\n\n")
	}
	w.writePaths(&sb, "ADDED", "+", c.Added)
	w.writePaths(&sb, "REMOVED", "-", c.Removed)
	w.writePaths(&sb, "CHANGED", "~", c.Changed)

	w.writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeRule(sb *strings.Builder, char string) {
	sb.WriteString(strings.Repeat(char, 70))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	w.writeRule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	w.writeRule(sb, "-")
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeUsage(sb *strings.Builder, title string, usage []model.Usage) {
	if len(usage) == 0 && !w.showEmpty {
		return
	}
	w.writeSection(sb, title)
	if len(usage) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, u := range usage {
		fmt.Fprintf(sb, "  %6s  %s\n", humanize.Comma(int64(u.Pages)), u.Name)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeErrors(sb *strings.Builder, errs []model.FetchError) {
	if len(errs) == 0 && !w.showEmpty {
		return
	}
	w.writeSection(sb, fmt.Sprintf("FETCH ERRORS (%d)", len(errs)))
	if len(errs) == 0 {
		sb.WriteString("  None\n\n")
		return
	}

	shown := errs
	if !w.verbose {
		shown = limit(errs, DefaultListLimit)
	}
	for _, e := range shown {
		status := "network"
		if e.StatusCode != 0 {
			status = fmt.Sprintf("%d", e.StatusCode)
		}
		fmt.Fprintf(sb, "  [%s] %s\n", status, e.URL)
		if e.Referrer != "" {
			fmt.Fprintf(sb, "    Linked from: %s\n", e.Referrer)
		}
		if w.verbose && e.Message != "" {
			fmt.Fprintf(sb, "    Message: %s\n", e.Message)
		}
	}
	if rest := len(errs) - len(shown); rest > 0 {
		fmt.Fprintf(sb, "  ... and %d more\n", rest)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeRedirects(sb *strings.Builder, redirects []model.Redirect) {
	if len(redirects) == 0 && !w.showEmpty {
		return
	}
	w.writeSection(sb, fmt.Sprintf("REDIRECTS (%d)", len(redirects)))
	if len(redirects) == 0 {
		sb.WriteString("  None\n\n")
		return
	}

	shown := redirects
	if !w.verbose {
		shown = limit(redirects, DefaultListLimit)
	}
	for _, r := range shown {
		fmt.Fprintf(sb, "  [%d] %s -> %s\n", r.StatusCode, r.URL, r.Location)
	}
	if rest := len(redirects) - len(shown); rest > 0 {
		fmt.Fprintf(sb, "  ... and %d more\n", rest)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCrawls(sb *strings.Builder, crawls []model.CrawlRun) {
	if len(crawls) == 0 && !w.showEmpty {
		return
	}
	w.writeSection(sb, "CRAWL RUNS")
	if len(crawls) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, c := range crawls {
		fmt.Fprintf(sb, "  %s  %-9s  %s stored, %d duplicates, %d failures",
			formatTime(c.StartedAt), c.Status, humanize.Comma(int64(c.PagesStored)), c.Duplicates, c.Failures)
		if d := c.Duration(); d > 0 {
			fmt.Fprintf(sb, " in %s", d.Round(time.Second))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePaths(sb *strings.Builder, title, marker string, paths []string) {
	if len(paths) == 0 && !w.showEmpty {
		return
	}
	w.writeSection(sb, title)
	if len(paths) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, p := range paths {
		fmt.Fprintf(sb, "  %s %s\n", marker, p)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	w.writeRule(sb, "=")
	sb.WriteString("Report generated by siteindex\n")
	sb.WriteString("https://github.com/nao1215/siteindex\n")
	w.writeRule(sb, "=")
}
