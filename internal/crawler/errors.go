package crawler

import "errors"

var (
	// ErrInvalidStartURL is returned by Crawl when the start URL is not an
	// absolute http or https URL.
	ErrInvalidStartURL = errors.New("invalid start URL")

	// ErrTooManyStorageFailures aborts a crawl after consecutive page writes
	// failed. The store is most likely unusable.
	ErrTooManyStorageFailures = errors.New("too many consecutive storage failures")

	// ErrInvalidPattern is returned when a path or extension filter does not
	// compile.
	ErrInvalidPattern = errors.New("invalid filter pattern")

	// errTooManyRedirects stops a redirect chain.
	errTooManyRedirects = errors.New("too many redirects")
)
