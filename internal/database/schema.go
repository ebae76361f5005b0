package database

import (
	"context"
	"fmt"
)

// schemaStatements creates every object of the store. Each statement is
// idempotent so EnsureSchema can run on every Open.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pages (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		path         TEXT NOT NULL UNIQUE,
		url          TEXT NOT NULL DEFAULT '',
		page_id      TEXT NOT NULL DEFAULT '',
		title        TEXT NOT NULL DEFAULT '',
		language     TEXT NOT NULL DEFAULT '',
		html         TEXT NOT NULL DEFAULT '',
		text         TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		crawled_at   DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pages_hash ON pages(content_hash)`,

	`CREATE TABLE IF NOT EXISTS components (
		id   INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS links (
		id  INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE
	)`,

	`CREATE TABLE IF NOT EXISTS page_components (
		page_id      INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
		component_id INTEGER NOT NULL REFERENCES components(id) ON DELETE CASCADE,
		PRIMARY KEY (page_id, component_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_page_components_component ON page_components(component_id)`,
	`CREATE TABLE IF NOT EXISTS page_links (
		page_id INTEGER NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
		link_id INTEGER NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		PRIMARY KEY (page_id, link_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_page_links_link ON page_links(link_id)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
		path,
		html,
		content='pages',
		content_rowid='id',
		tokenize='unicode61 remove_diacritics 2'
	)`,
	`CREATE TRIGGER IF NOT EXISTS pages_ai AFTER INSERT ON pages BEGIN
		INSERT INTO pages_fts(rowid, path, html) VALUES (new.id, new.path, new.html);
	END`,
	`CREATE TRIGGER IF NOT EXISTS pages_ad AFTER DELETE ON pages BEGIN
		INSERT INTO pages_fts(pages_fts, rowid, path, html) VALUES ('delete', old.id, old.path, old.html);
	END`,
	`CREATE TRIGGER IF NOT EXISTS pages_au AFTER UPDATE OF path, html ON pages BEGIN
		INSERT INTO pages_fts(pages_fts, rowid, path, html) VALUES ('delete', old.id, old.path, old.html);
		INSERT INTO pages_fts(rowid, path, html) VALUES (new.id, new.path, new.html);
	END`,

	`CREATE TABLE IF NOT EXISTS errors (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		url         TEXT NOT NULL UNIQUE,
		status_code INTEGER NOT NULL DEFAULT 0,
		referrer    TEXT NOT NULL DEFAULT '',
		message     TEXT NOT NULL DEFAULT '',
		timestamp   DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS redirects (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		url         TEXT NOT NULL UNIQUE,
		status_code INTEGER NOT NULL,
		location    TEXT NOT NULL,
		referrer    TEXT NOT NULL DEFAULT '',
		timestamp   DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS crawls (
		id           TEXT PRIMARY KEY,
		start_url    TEXT NOT NULL,
		started_at   DATETIME NOT NULL,
		finished_at  DATETIME,
		pages_stored INTEGER NOT NULL DEFAULT 0,
		duplicates   INTEGER NOT NULL DEFAULT 0,
		failures     INTEGER NOT NULL DEFAULT 0,
		status       TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crawls_started ON crawls(started_at)`,
}

// dropStatements removes every object created by schemaStatements.
// Triggers and the FTS table go first because they reference pages.
var dropStatements = []string{
	`DROP TRIGGER IF EXISTS pages_ai`,
	`DROP TRIGGER IF EXISTS pages_ad`,
	`DROP TRIGGER IF EXISTS pages_au`,
	`DROP TABLE IF EXISTS pages_fts`,
	`DROP TABLE IF EXISTS page_components`,
	`DROP TABLE IF EXISTS page_links`,
	`DROP TABLE IF EXISTS components`,
	`DROP TABLE IF EXISTS links`,
	`DROP TABLE IF EXISTS pages`,
	`DROP TABLE IF EXISTS errors`,
	`DROP TABLE IF EXISTS redirects`,
	`DROP TABLE IF EXISTS crawls`,
}

// EnsureSchema creates all tables, indexes, the search index and its
// triggers when they are missing. Running it on an initialized store is a
// no-op.
func (d *DB) EnsureSchema(ctx context.Context) error {
	return d.execAll(ctx, schemaStatements)
}

// Reset drops every object and recreates an empty schema.
// It is an administrative action used by crawl --recreate.
func (d *DB) Reset(ctx context.Context) error {
	if err := d.execAll(ctx, dropStatements); err != nil {
		return err
	}
	return d.execAll(ctx, schemaStatements)
}

func (d *DB) execAll(ctx context.Context, stmts []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrSchema, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return nil
}
