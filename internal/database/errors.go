package database

import "errors"

var (
	// ErrDuplicatePage is returned by InsertPage under PolicyInsertOnly when
	// a page with the same path is already stored. Callers skip the page and
	// continue.
	ErrDuplicatePage = errors.New("page already stored")

	// ErrStorage wraps write failures. The current page write was rolled
	// back entirely.
	ErrStorage = errors.New("storage write failed")

	// ErrSchema is returned when the schema cannot be created or verified.
	ErrSchema = errors.New("schema setup failed")

	// ErrDatabaseNotFound is returned by Open when CreateIfNotExists is false
	// and the file does not exist.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrInvalidPage is returned when a page record lacks a path.
	ErrInvalidPage = errors.New("invalid page record")

	// ErrInvalidPolicy is returned by ParseDuplicatePolicy for unknown names.
	ErrInvalidPolicy = errors.New("invalid duplicate policy")
)
