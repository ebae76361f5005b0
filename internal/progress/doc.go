// Package progress reports crawl progress while pages are being stored.
//
// The crawler talks to an Observer. Tracker renders a text progress bar,
// PrometheusSink exports counters for scraping, and Multi fans out to
// several observers. Observers are best effort: write errors are ignored
// and a failing observer never affects the crawl.
package progress
