package report

import (
	"io"
	"time"

	"github.com/nao1215/siteindex/internal/model"
)

// DefaultListLimit is how many errors and redirects a non-verbose report
// lists before summarizing the rest.
const DefaultListLimit = 10

// timeLayout formats timestamps in text and Markdown reports.
const timeLayout = "2006-01-02 15:04:05 MST"

// Writer defines the interface for report output.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files or stdout with the same
// API.
type Writer interface {
	// WriteSummary outputs a crawl summary.
	// Returns the number of bytes written and any error encountered.
	WriteSummary(summary *model.Summary) (int, error)

	// WriteComparison outputs the differences between two stores.
	WriteComparison(cmp *model.Comparison) (int, error)
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// formatTime renders t, or "-" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeLayout)
}

// limit returns the first n items of s, or all of them when n <= 0.
func limit[T any](s []T, n int) []T {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
