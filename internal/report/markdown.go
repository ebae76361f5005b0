package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/siteindex/internal/model"
)

// chartSlices is the number of components drawn in the usage pie chart.
const chartSlices = 8

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// WriteSummary outputs the crawl summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(s *model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Site Index Report")
	md.PlainText("")

	rows := [][]string{
		{"Database", "`" + s.Database + "`"},
		{"Generated", formatTime(s.GeneratedAt)},
		{"Pages", humanize.Comma(int64(s.Pages))},
		{"Components", strconv.Itoa(len(s.Components))},
	}
	if run := s.LatestCrawl(); run != nil {
		rows = append(rows, []string{"Last crawl", fmt.Sprintf("%s (%s)", run.StartURL, run.Status)})
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	w.writeAlert(md, s)
	w.writeComponents(md, s.Components)
	w.writeUsageTable(md, "Top Links", "Link", s.Links)
	w.writeErrors(md, s.Errors)
	w.writeRedirects(md, s.Redirects)
	w.writeCrawls(md, s.Crawls)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteComparison outputs a comparison in Markdown format.
func (w *MarkdownWriter) WriteComparison(c *model.Comparison) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Site Index Comparison")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Old", "`" + c.Old + "`"},
			{"New", "`" + c.New + "`"},
			{"Added", strconv.Itoa(len(c.Added))},
			{"Removed", strconv.Itoa(len(c.Removed))},
			{"Changed", strconv.Itoa(len(c.Changed))},
			{"Unchanged", strconv.Itoa(c.Same)},
		},
	})
	md.PlainText("")

	if !c.HasChanges() {
		md.Tip("No differences found.")
		md.PlainText("")
	}
	w.writePathList(md, "Added", c.Added)
	w.writePathList(md, "Removed", c.Removed)
	w.writePathList(md, "Changed", c.Changed)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.Summary) {
	run := s.LatestCrawl()
	switch {
	case run != nil && run.Status == model.CrawlStatusFailed:
		md.Cautionf("The last crawl failed after storing %d page(s).", run.PagesStored)
	case run != nil && run.Status == model.CrawlStatusCancelled:
		md.Warningf("The last crawl was cancelled after storing %d page(s).", run.PagesStored)
	case len(s.Errors) > 0:
		md.Importantf("%d URL(s) could not be fetched.", len(s.Errors))
	case s.Pages == 0:
		md.Note("The database contains no pages.")
	default:
		md.Tip("Every discovered page was fetched successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeComponents(md *markdown.Markdown, usage []model.Usage) {
	w.writeUsageTable(md, "Components", "Component", usage)
	if len(usage) == 0 {
		return
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Component Usage"),
		piechart.WithShowData(true),
	)
	for _, u := range limit(usage, chartSlices) {
		chart.LabelAndIntValue(u.Name, uint64(u.Pages)) //nolint:gosec // page counts are never negative
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeUsageTable(md *markdown.Markdown, title, column string, usage []model.Usage) {
	md.H2(title)
	md.PlainText("")
	if len(usage) == 0 {
		md.PlainText("None recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(usage))
	for i, u := range usage {
		rows[i] = []string{"`" + u.Name + "`", strconv.Itoa(u.Pages)}
	}
	md.Table(markdown.TableSet{Header: []string{column, "Pages"}, Rows: rows})
	md.PlainText("")
}

func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, errs []model.FetchError) {
	md.H2("Fetch Errors")
	md.PlainText("")
	if len(errs) == 0 {
		md.PlainText("No fetch errors.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(errs))
	for i, e := range errs {
		status := "network"
		if e.StatusCode != 0 {
			status = strconv.Itoa(e.StatusCode)
		}
		rows[i] = []string{status, e.URL, orDash(e.Referrer), truncateString(orDash(e.Message), 60)}
	}
	md.Table(markdown.TableSet{Header: []string{"Status", "URL", "Linked From", "Message"}, Rows: rows})
	md.PlainText("")
}

func (w *MarkdownWriter) writeRedirects(md *markdown.Markdown, redirects []model.Redirect) {
	md.H2("Redirects")
	md.PlainText("")
	if len(redirects) == 0 {
		md.PlainText("No redirects.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(redirects))
	for i, r := range redirects {
		rows[i] = []string{strconv.Itoa(r.StatusCode), r.URL, r.Location}
	}
	md.Table(markdown.TableSet{Header: []string{"Status", "URL", "Location"}, Rows: rows})
	md.PlainText("")
}

func (w *MarkdownWriter) writeCrawls(md *markdown.Markdown, crawls []model.CrawlRun) {
	if len(crawls) == 0 {
		return
	}
	md.H2("Crawl Runs")
	md.PlainText("")

	rows := make([][]string, len(crawls))
	for i, c := range crawls {
		rows[i] = []string{
			formatTime(c.StartedAt),
			string(c.Status),
			strconv.Itoa(c.PagesStored),
			strconv.Itoa(c.Duplicates),
			strconv.Itoa(c.Failures),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Started", "Status", "Stored", "Duplicates", "Failures"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writePathList(md *markdown.Markdown, title string, paths []string) {
	if len(paths) == 0 {
		return
	}
	md.H2(title)
	md.PlainText("")
	items := make([]string, len(paths))
	for i, p := range paths {
		items[i] = "`" + p + "`"
	}
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [siteindex](https://github.com/nao1215/siteindex)*")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
