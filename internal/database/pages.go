package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/nao1215/siteindex/internal/model"
)

// InsertResult describes what InsertPage did.
type InsertResult struct {
	// RowID is the pages.id of the stored page.
	RowID int64

	// Replaced is true when an existing row was overwritten.
	Replaced bool

	// Unchanged is true when PolicyReplace found an identical content hash
	// and only refreshed crawled_at.
	Unchanged bool

	// Components and Links count the associations written.
	Components int
	Links      int
}

// InsertPage stores rec with its component and link associations.
//
// Every statement runs in one transaction: the page row, insert-if-absent
// of each component and link, the association rows and, through triggers,
// the search index. Any failure rolls all of it back, so a page is never
// visible without its associations.
//
// Under PolicyInsertOnly a stored path yields ErrDuplicatePage. Under
// PolicyReplace the row is rewritten unless the content hash matches.
func (d *DB) InsertPage(ctx context.Context, rec *model.PageRecord) (InsertResult, error) {
	if rec == nil || rec.Path == "" {
		return InsertResult{}, ErrInvalidPage
	}

	var res InsertResult
	err := d.withRetry(ctx, func() error {
		var err error
		res, err = d.insertPageTx(ctx, rec)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicatePage) || errors.Is(err, ErrInvalidPage) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return InsertResult{}, err
		}
		return InsertResult{}, fmt.Errorf("%w: %s: %w", ErrStorage, rec.Path, err)
	}
	return res, nil
}

func (d *DB) insertPageTx(ctx context.Context, rec *model.PageRecord) (InsertResult, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return InsertResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var res InsertResult
	switch d.policy {
	case PolicyReplace:
		res, err = replacePageRow(ctx, tx, rec)
	default:
		res, err = insertPageRow(ctx, tx, rec)
	}
	if err != nil {
		return InsertResult{}, err
	}

	if res.Unchanged {
		return res, tx.Commit()
	}

	if d.afterPageRow != nil {
		if err := d.afterPageRow(); err != nil {
			return InsertResult{}, err
		}
	}

	for _, name := range rec.UniqueComponents() {
		id, err := ensureComponent(ctx, tx, name)
		if err != nil {
			return InsertResult{}, fmt.Errorf("component %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO page_components (page_id, component_id) VALUES (?, ?)
			 ON CONFLICT DO NOTHING`, res.RowID, id); err != nil {
			return InsertResult{}, fmt.Errorf("associate component %q: %w", name, err)
		}
		res.Components++
	}

	for _, link := range rec.UniqueLinks() {
		id, err := ensureLink(ctx, tx, link)
		if err != nil {
			return InsertResult{}, fmt.Errorf("link %q: %w", link, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO page_links (page_id, link_id) VALUES (?, ?)
			 ON CONFLICT DO NOTHING`, res.RowID, id); err != nil {
			return InsertResult{}, fmt.Errorf("associate link %q: %w", link, err)
		}
		res.Links++
	}

	if err := tx.Commit(); err != nil {
		return InsertResult{}, err
	}
	return res, nil
}

func insertPageRow(ctx context.Context, tx *sql.Tx, rec *model.PageRecord) (InsertResult, error) {
	result, err := tx.ExecContext(ctx, `
	INSERT INTO pages (path, url, page_id, title, language, html, text, content_hash, crawled_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO NOTHING`,
		rec.Path, rec.URL, rec.PageID, rec.Title, rec.Language,
		rec.HTML, rec.Text, rec.ContentHash, formatTimestamp(rec.CrawledAt),
	)
	if err != nil {
		return InsertResult{}, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return InsertResult{}, err
	}
	if n == 0 {
		return InsertResult{}, fmt.Errorf("%w: %s", ErrDuplicatePage, rec.Path)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return InsertResult{}, err
	}
	return InsertResult{RowID: id}, nil
}

func replacePageRow(ctx context.Context, tx *sql.Tx, rec *model.PageRecord) (InsertResult, error) {
	var (
		id   int64
		hash string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, content_hash FROM pages WHERE path = ?`, rec.Path).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return insertPageRow(ctx, tx, rec)
	}
	if err != nil {
		return InsertResult{}, err
	}

	if hash == rec.ContentHash {
		if _, err := tx.ExecContext(ctx,
			`UPDATE pages SET crawled_at = ?, url = ? WHERE id = ?`,
			formatTimestamp(rec.CrawledAt), rec.URL, id); err != nil {
			return InsertResult{}, err
		}
		return InsertResult{RowID: id, Replaced: true, Unchanged: true}, nil
	}

	if _, err := tx.ExecContext(ctx, `
	UPDATE pages SET url = ?, page_id = ?, title = ?, language = ?, html = ?, text = ?,
		content_hash = ?, crawled_at = ?
	WHERE id = ?`,
		rec.URL, rec.PageID, rec.Title, rec.Language, rec.HTML, rec.Text,
		rec.ContentHash, formatTimestamp(rec.CrawledAt), id,
	); err != nil {
		return InsertResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM page_components WHERE page_id = ?`, id); err != nil {
		return InsertResult{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM page_links WHERE page_id = ?`, id); err != nil {
		return InsertResult{}, err
	}
	return InsertResult{RowID: id, Replaced: true}, nil
}

// ensureComponent returns the id of the named component, creating it when
// absent. Calling it any number of times, from any number of transactions,
// leaves exactly one row per name: the UNIQUE constraint with ON CONFLICT
// DO NOTHING absorbs a racing insert and the follow-up select finds the
// winner's row.
func ensureComponent(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	return ensureRow(ctx, tx,
		`SELECT id FROM components WHERE name = ?`,
		`INSERT INTO components (name) VALUES (?) ON CONFLICT(name) DO NOTHING`,
		name)
}

// ensureLink is ensureComponent for links.
func ensureLink(ctx context.Context, tx *sql.Tx, link string) (int64, error) {
	return ensureRow(ctx, tx,
		`SELECT id FROM links WHERE url = ?`,
		`INSERT INTO links (url) VALUES (?) ON CONFLICT(url) DO NOTHING`,
		link)
}

func ensureRow(ctx context.Context, tx *sql.Tx, selectQuery, insertQuery, key string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, selectQuery, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, insertQuery, key); err != nil {
		return 0, err
	}
	if err := tx.QueryRowContext(ctx, selectQuery, key).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Count returns the number of stored pages.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}

// GetPage returns the page stored under path with its components and links
// in insertion order, or nil when no such page exists.
func (d *DB) GetPage(ctx context.Context, path string) (*model.PageRecord, error) {
	var (
		rec       model.PageRecord
		crawledAt string
	)
	err := d.db.QueryRowContext(ctx, `
	SELECT id, path, url, page_id, title, language, html, text, content_hash, crawled_at
	FROM pages WHERE path = ?`, path).Scan(
		&rec.ID, &rec.Path, &rec.URL, &rec.PageID, &rec.Title, &rec.Language,
		&rec.HTML, &rec.Text, &rec.ContentHash, &crawledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	rec.CrawledAt = parseTimestamp(crawledAt)

	rec.Components, err = d.queryStrings(ctx, `
	SELECT c.name FROM page_components pc
	JOIN components c ON c.id = pc.component_id
	WHERE pc.page_id = ? ORDER BY pc.rowid`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get page components: %w", err)
	}

	rec.Links, err = d.queryStrings(ctx, `
	SELECT l.url FROM page_links pl
	JOIN links l ON l.id = pl.link_id
	WHERE pl.page_id = ? ORDER BY pl.rowid`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get page links: %w", err)
	}

	return &rec, nil
}

// PageHash returns the stored content hash for path and whether the page
// exists.
func (d *DB) PageHash(ctx context.Context, path string) (string, bool, error) {
	var hash string
	err := d.db.QueryRowContext(ctx,
		`SELECT content_hash FROM pages WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get page hash: %w", err)
	}
	return hash, true, nil
}

// PageLinks returns the links stored for path in insertion order. A path
// that is not stored has no links.
func (d *DB) PageLinks(ctx context.Context, path string) ([]string, error) {
	links, err := d.queryStrings(ctx, `
	SELECT l.url FROM pages p
	JOIN page_links pl ON pl.page_id = p.id
	JOIN links l ON l.id = pl.link_id
	WHERE p.path = ? ORDER BY pl.rowid`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get page links: %w", err)
	}
	return links, nil
}

// RefreshPage sets crawled_at and url of the page stored under path when
// its content hash equals hash, and reports whether a row was updated.
// Components, links and the rest of the row are left as stored.
func (d *DB) RefreshPage(ctx context.Context, path, pageURL, hash string, crawledAt time.Time) (bool, error) {
	var n int64
	err := d.withRetry(ctx, func() error {
		res, err := d.db.ExecContext(ctx,
			`UPDATE pages SET crawled_at = ?, url = ? WHERE path = ? AND content_hash = ?`,
			formatTimestamp(crawledAt), pageURL, path, hash)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%w: refresh %s: %w", ErrStorage, path, err)
	}
	return n > 0, nil
}

// PageHashes returns path to content hash for every stored page.
func (d *DB) PageHashes(ctx context.Context) (map[string]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT path, content_hash FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("failed to list page hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan page hash: %w", err)
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// PagesWithComponent returns the pages associated with exactly name.
func (d *DB) PagesWithComponent(ctx context.Context, name string) ([]model.PageSummary, error) {
	return d.querySummaries(ctx, `
	SELECT p.path, p.url, p.title, p.language, p.crawled_at, c.name
	FROM pages p
	JOIN page_components pc ON pc.page_id = p.id
	JOIN components c ON c.id = pc.component_id
	WHERE c.name = ?
	ORDER BY p.path`, name)
}

// PagesWithLink returns the pages that link to exactly linkURL.
func (d *DB) PagesWithLink(ctx context.Context, linkURL string) ([]model.PageSummary, error) {
	return d.querySummaries(ctx, `
	SELECT p.path, p.url, p.title, p.language, p.crawled_at, l.url
	FROM pages p
	JOIN page_links pl ON pl.page_id = p.id
	JOIN links l ON l.id = pl.link_id
	WHERE l.url = ?
	ORDER BY p.path`, linkURL)
}

// SearchComponents returns pages using any component whose name contains
// substr, ignoring ASCII case. A page appears once per matching component.
func (d *DB) SearchComponents(ctx context.Context, substr string) ([]model.PageSummary, error) {
	return d.querySummaries(ctx, `
	SELECT p.path, p.url, p.title, p.language, p.crawled_at, c.name
	FROM pages p
	JOIN page_components pc ON pc.page_id = p.id
	JOIN components c ON c.id = pc.component_id
	WHERE c.name LIKE ? ESCAPE '\'
	ORDER BY p.path, c.name`, likePattern(substr))
}

// SearchLinks returns pages linking to any URL containing substr, either
// as typed or in its query-escaped form, ignoring ASCII case.
// The escaped form catches links wrapped in a redirect query parameter.
func (d *DB) SearchLinks(ctx context.Context, substr string) ([]model.PageSummary, error) {
	return d.querySummaries(ctx, `
	SELECT p.path, p.url, p.title, p.language, p.crawled_at, l.url
	FROM pages p
	JOIN page_links pl ON pl.page_id = p.id
	JOIN links l ON l.id = pl.link_id
	WHERE l.url LIKE ? ESCAPE '\' OR l.url LIKE ? ESCAPE '\'
	ORDER BY p.path, l.url`, likePattern(substr), likePattern(url.QueryEscape(substr)))
}

// SearchTitle returns pages whose title contains substr, ignoring ASCII case.
func (d *DB) SearchTitle(ctx context.Context, substr string) ([]model.PageSummary, error) {
	return d.querySummaries(ctx, `
	SELECT path, url, title, language, crawled_at, title
	FROM pages
	WHERE title LIKE ? ESCAPE '\'
	ORDER BY path`, likePattern(substr))
}

func (d *DB) querySummaries(ctx context.Context, query string, args ...any) ([]model.PageSummary, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	results := make([]model.PageSummary, 0)
	for rows.Next() {
		var (
			s         model.PageSummary
			crawledAt string
		)
		if err := rows.Scan(&s.Path, &s.URL, &s.Title, &s.Language, &crawledAt, &s.Match); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		s.CrawledAt = parseTimestamp(crawledAt)
		results = append(results, s)
	}
	return results, rows.Err()
}

func (d *DB) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
