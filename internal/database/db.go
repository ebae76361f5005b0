package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DuplicatePolicy decides what InsertPage does when the path is already
// stored.
type DuplicatePolicy string

const (
	// PolicyInsertOnly keeps the first stored version and rejects later
	// writes with ErrDuplicatePage.
	PolicyInsertOnly DuplicatePolicy = "insert"

	// PolicyReplace overwrites the stored page and its associations. When
	// the content hash is unchanged only crawled_at and url are refreshed.
	PolicyReplace DuplicatePolicy = "replace"
)

// ParseDuplicatePolicy converts a configuration value to a DuplicatePolicy.
// The empty string selects PolicyInsertOnly.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "insert", "insert-only", "reject":
		return PolicyInsertOnly, nil
	case "replace", "upsert":
		return PolicyReplace, nil
	default:
		return "", fmt.Errorf("%w: %q (use insert or replace)", ErrInvalidPolicy, s)
	}
}

// defaultBusyRetries is used when Options.BusyRetries is zero.
const defaultBusyRetries = 5

// busyTimeoutMillis is passed to SQLite as busy_timeout.
const busyTimeoutMillis = 5000

// DB is a siteindex store backed by a single SQLite file.
//
// Design decision: the pool is limited to one connection. SQLite accepts a
// single writer at a time, and funnelling every statement through one
// connection turns concurrent InsertPage calls into a queue instead of a
// stream of SQLITE_BUSY errors. Reads are fast enough that sharing the
// connection costs nothing noticeable for a CLI.
type DB struct {
	db     *sql.DB
	path   string
	policy DuplicatePolicy

	busyRetries int

	// afterPageRow, when set, runs inside the InsertPage transaction after
	// the page row is written and before its associations. Tests use it to
	// inject failures.
	afterPageRow func() error
}

// Options configures a DB.
type Options struct {
	// CreateIfNotExists creates the file and its parent directory if needed.
	CreateIfNotExists bool

	// EnableWAL switches the journal to write-ahead logging.
	EnableWAL bool

	// DuplicatePolicy selects reject or replace for repeated paths.
	// Empty means PolicyInsertOnly.
	DuplicatePolicy DuplicatePolicy

	// BusyRetries bounds how often a write hitting SQLITE_BUSY or
	// SQLITE_LOCKED is retried. Zero selects a small default; negative
	// disables retries.
	BusyRetries int
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
		DuplicatePolicy:   PolicyInsertOnly,
	}
}

// Open opens or creates the store at path and ensures its schema.
// Schema failures are reported as ErrSchema and leave nothing open.
func Open(path string, opts Options) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrDatabaseNotFound)
	}

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	mode := "rw"
	if opts.CreateIfNotExists {
		mode = "rwc"
	}
	dsn := fmt.Sprintf("%s?mode=%s&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, mode, busyTimeoutMillis)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	policy := opts.DuplicatePolicy
	if policy == "" {
		policy = PolicyInsertOnly
	}
	retries := opts.BusyRetries
	switch {
	case retries == 0:
		retries = defaultBusyRetries
	case retries < 0:
		retries = 0
	}

	db := &DB{
		db:          sqlDB,
		path:        path,
		policy:      policy,
		busyRetries: retries,
	}

	ctx := context.Background()
	if opts.EnableWAL {
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.EnsureSchema(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the file the store was opened from.
func (d *DB) Path() string {
	return d.path
}

// Policy returns the duplicate policy applied by InsertPage.
func (d *DB) Policy() DuplicatePolicy {
	return d.policy
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// withRetry runs fn, retrying while SQLite reports the database as busy or
// locked. The backoff grows linearly and stops early when ctx is done.
func (d *DB) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) || attempt >= d.busyRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including
// their extended codes.
func isBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// timestampFormats lists the layouts SQLite may hand back for stored
// timestamps, most specific first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// formatTimestamp is the single encoding used for every stored time.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp decodes a stored time. Unknown layouts yield the zero
// time rather than failing the whole read.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// likePattern builds a case-insensitive LIKE pattern matching s anywhere,
// escaping LIKE metacharacters with a backslash.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
