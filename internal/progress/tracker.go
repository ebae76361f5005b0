package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// barWidth is the number of cells in the rendered bar.
const barWidth = 40

// Tracker writes a progress line for every accepted page:
//
//	| ████████░░░░ | 20% | 5180/25900 pages | /about/
type Tracker struct {
	mu      sync.Mutex
	w       io.Writer
	total   int
	current int
	redraw  bool
	started time.Time
	now     func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithRedraw overwrites the previous line instead of appending a new one.
// Use it when the writer is a terminal.
func WithRedraw() TrackerOption {
	return func(t *Tracker) {
		t.redraw = true
	}
}

// NewTracker returns a Tracker writing to w. total is the initial estimate;
// Start may replace it.
func NewTracker(w io.Writer, total int, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		w:     w,
		total: total,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.started = t.now()
	return t
}

// Start implements Observer. A positive total replaces the estimate.
func (t *Tracker) Start(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if total > 0 {
		t.total = total
	}
	t.current = 0
	t.started = t.now()
}

// Accepted implements Observer.
func (t *Tracker) Accepted(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current++
	if t.current > t.total {
		t.total = t.current
	}

	line := t.render(path)
	if t.redraw {
		_, _ = fmt.Fprintf(t.w, "\r\x1b[K%s", line)
		return
	}
	_, _ = fmt.Fprintln(t.w, line)
}

// Finish implements Observer and prints a closing summary.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.redraw {
		_, _ = fmt.Fprintln(t.w)
	}
	elapsed := t.now().Sub(t.started).Round(time.Second)
	_, _ = fmt.Fprintf(t.w, "indexed %s pages in %s\n", humanize.Comma(int64(t.current)), elapsed)
}

// Current returns the number of accepted pages and the current total.
func (t *Tracker) Current() (current, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.total
}

func (t *Tracker) render(path string) string {
	pct := 0
	if t.total > 0 {
		pct = t.current * 100 / t.total
	}
	filled := pct * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return fmt.Sprintf("| %s | %d%% | %d/%d pages | %s", bar, pct, t.current, t.total, path)
}
