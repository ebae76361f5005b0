package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/nao1215/siteindex/internal/model"
)

// DefaultSearchLimit caps Search results when the caller passes zero.
const DefaultSearchLimit = 50

// Search runs a full-text query against page paths and markup.
//
// Each whitespace-separated term of query is quoted as an FTS5 phrase, so
// punctuation in user input never reaches the MATCH grammar; all terms
// must match. Hits are ordered by bm25 rank, best first. A blank query
// returns no hits.
func (d *DB) Search(ctx context.Context, query string, limit int) ([]model.SearchHit, error) {
	match := matchExpression(query)
	if match == "" {
		return []model.SearchHit{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := d.db.QueryContext(ctx, `
	SELECT p.path, p.title, snippet(pages_fts, 1, '[', ']', '...', 12), pages_fts.rank
	FROM pages_fts
	JOIN pages p ON p.id = pages_fts.rowid
	WHERE pages_fts MATCH ?
	ORDER BY pages_fts.rank
	LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search pages: %w", err)
	}
	defer rows.Close()

	hits := make([]model.SearchHit, 0)
	for rows.Next() {
		var h model.SearchHit
		if err := rows.Scan(&h.Path, &h.Title, &h.Snippet, &h.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// matchExpression turns free text into an FTS5 query of quoted phrases.
func matchExpression(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// RebuildSearchIndex regenerates pages_fts from the pages table.
func (d *DB) RebuildSearchIndex(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `INSERT INTO pages_fts(pages_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("%w: rebuild search index: %w", ErrStorage, err)
	}
	return nil
}

// ComponentUsage returns components with the number of pages using each,
// most used first. A limit of zero or less returns all of them.
func (d *DB) ComponentUsage(ctx context.Context, limit int) ([]model.Usage, error) {
	return d.queryUsage(ctx, `
	SELECT c.name, COUNT(pc.page_id) AS pages
	FROM components c
	LEFT JOIN page_components pc ON pc.component_id = c.id
	GROUP BY c.id
	ORDER BY pages DESC, c.name
	LIMIT ?`, limit)
}

// LinkUsage returns links with the number of pages referencing each, most
// referenced first. A limit of zero or less returns all of them.
func (d *DB) LinkUsage(ctx context.Context, limit int) ([]model.Usage, error) {
	return d.queryUsage(ctx, `
	SELECT l.url, COUNT(pl.page_id) AS pages
	FROM links l
	LEFT JOIN page_links pl ON pl.link_id = l.id
	GROUP BY l.id
	ORDER BY pages DESC, l.url
	LIMIT ?`, limit)
}

func (d *DB) queryUsage(ctx context.Context, query string, limit int) ([]model.Usage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	usage := make([]model.Usage, 0)
	for rows.Next() {
		var u model.Usage
		if err := rows.Scan(&u.Name, &u.Pages); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}
