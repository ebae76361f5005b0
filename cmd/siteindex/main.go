// Package main provides the entry point for the siteindex CLI.
//
// siteindex crawls every HTML page of one website into a SQLite database
// and answers questions about it: which pages use a design-system
// component, which pages link to a URL, which pages mention a phrase.
//
// Usage:
//
//	siteindex crawl https://www.example.com/ crawl.sqlite3
//	siteindex search crawl.sqlite3 component o-hero
//	siteindex report crawl.sqlite3 --markdown
//
// See --help for all available options.
package main

func main() {
	Execute()
}
