package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/siteindex/internal/model"
)

// InsertFetchError records a URL that failed to fetch. A later failure of
// the same URL overwrites the earlier record.
func (d *DB) InsertFetchError(ctx context.Context, fe *model.FetchError) error {
	ts := fe.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	err := d.withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
		INSERT INTO errors (url, status_code, referrer, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			status_code = excluded.status_code,
			referrer = excluded.referrer,
			message = excluded.message,
			timestamp = excluded.timestamp`,
			fe.URL, fe.StatusCode, fe.Referrer, fe.Message, formatTimestamp(ts))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: fetch error for %s: %w", ErrStorage, fe.URL, err)
	}
	return nil
}

// InsertRedirect records a redirect hop. A later hop from the same URL
// overwrites the earlier record.
func (d *DB) InsertRedirect(ctx context.Context, r *model.Redirect) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	err := d.withRetry(ctx, func() error {
		_, err := d.db.ExecContext(ctx, `
		INSERT INTO redirects (url, status_code, location, referrer, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			status_code = excluded.status_code,
			location = excluded.location,
			referrer = excluded.referrer,
			timestamp = excluded.timestamp`,
			r.URL, r.StatusCode, r.Location, r.Referrer, formatTimestamp(ts))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: redirect for %s: %w", ErrStorage, r.URL, err)
	}
	return nil
}

// FetchErrors returns every recorded fetch error ordered by URL.
func (d *DB) FetchErrors(ctx context.Context) ([]model.FetchError, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT url, status_code, referrer, message, timestamp FROM errors ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fetch errors: %w", err)
	}
	defer rows.Close()

	out := make([]model.FetchError, 0)
	for rows.Next() {
		var (
			fe model.FetchError
			ts string
		)
		if err := rows.Scan(&fe.URL, &fe.StatusCode, &fe.Referrer, &fe.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan fetch error: %w", err)
		}
		fe.Timestamp = parseTimestamp(ts)
		out = append(out, fe)
	}
	return out, rows.Err()
}

// Redirects returns every recorded redirect ordered by URL.
func (d *DB) Redirects(ctx context.Context) ([]model.Redirect, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT url, status_code, location, referrer, timestamp FROM redirects ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("failed to query redirects: %w", err)
	}
	defer rows.Close()

	out := make([]model.Redirect, 0)
	for rows.Next() {
		var (
			r  model.Redirect
			ts string
		)
		if err := rows.Scan(&r.URL, &r.StatusCode, &r.Location, &r.Referrer, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan redirect: %w", err)
		}
		r.Timestamp = parseTimestamp(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// StartCrawl records the beginning of a crawl and returns the run with a
// fresh UUID.
func (d *DB) StartCrawl(ctx context.Context, startURL string) (*model.CrawlRun, error) {
	run := &model.CrawlRun{
		ID:        uuid.NewString(),
		StartURL:  startURL,
		StartedAt: time.Now().UTC(),
		Status:    model.CrawlStatusRunning,
	}
	_, err := d.db.ExecContext(ctx, `
	INSERT INTO crawls (id, start_url, started_at, status) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartURL, formatTimestamp(run.StartedAt), string(run.Status))
	if err != nil {
		return nil, fmt.Errorf("%w: start crawl: %w", ErrStorage, err)
	}
	return run, nil
}

// FinishCrawl stores the final counters and status of run. A zero
// FinishedAt is set to now.
func (d *DB) FinishCrawl(ctx context.Context, run *model.CrawlRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx, `
	UPDATE crawls SET finished_at = ?, pages_stored = ?, duplicates = ?, failures = ?, status = ?
	WHERE id = ?`,
		formatTimestamp(run.FinishedAt), run.PagesStored, run.Duplicates, run.Failures,
		string(run.Status), run.ID)
	if err != nil {
		return fmt.Errorf("%w: finish crawl: %w", ErrStorage, err)
	}
	return nil
}

// Crawls returns all crawl runs, most recent first.
func (d *DB) Crawls(ctx context.Context) ([]model.CrawlRun, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT id, start_url, started_at, finished_at, pages_stored, duplicates, failures, status
	FROM crawls ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawls: %w", err)
	}
	defer rows.Close()

	out := make([]model.CrawlRun, 0)
	for rows.Next() {
		var (
			run      model.CrawlRun
			started  string
			finished sql.NullString
			status   string
		)
		if err := rows.Scan(&run.ID, &run.StartURL, &started, &finished,
			&run.PagesStored, &run.Duplicates, &run.Failures, &status); err != nil {
			return nil, fmt.Errorf("failed to scan crawl: %w", err)
		}
		run.StartedAt = parseTimestamp(started)
		if finished.Valid {
			run.FinishedAt = parseTimestamp(finished.String)
		}
		run.Status = model.CrawlStatus(status)
		out = append(out, run)
	}
	return out, rows.Err()
}

// Summarize collects the aggregated content of the store for reports.
// topN limits the component and link inventories; zero means no limit.
func (d *DB) Summarize(ctx context.Context, topN int) (*model.Summary, error) {
	pages, err := d.Count(ctx)
	if err != nil {
		return nil, err
	}
	components, err := d.ComponentUsage(ctx, topN)
	if err != nil {
		return nil, err
	}
	links, err := d.LinkUsage(ctx, topN)
	if err != nil {
		return nil, err
	}
	fetchErrors, err := d.FetchErrors(ctx)
	if err != nil {
		return nil, err
	}
	redirects, err := d.Redirects(ctx)
	if err != nil {
		return nil, err
	}
	crawls, err := d.Crawls(ctx)
	if err != nil {
		return nil, err
	}

	return &model.Summary{
		Database:    d.path,
		GeneratedAt: time.Now().UTC(),
		Pages:       pages,
		Components:  components,
		Links:       links,
		Errors:      fetchErrors,
		Redirects:   redirects,
		Crawls:      crawls,
	}, nil
}
