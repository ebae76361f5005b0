package main

import "errors"

var (
	// errConflictingFormats is returned when both --json and --markdown
	// are given.
	errConflictingFormats = errors.New("conflicting output formats: --json and --markdown cannot be used together")

	// errUnknownSearchMode is returned for a search kind other than text,
	// component, link or title.
	errUnknownSearchMode = errors.New("unknown search mode: use text, component, link or title")
)
