// Package model defines the data structures shared by the crawler, the
// storage engine and the report writers.
//
// This package contains the following main types:
//   - PageRecord: one crawled page with its components and links
//   - FetchError, Redirect: non-page outcomes recorded during a crawl
//   - CrawlRun: bookkeeping for a single crawl invocation
//   - Summary, Comparison: aggregated views used by reports
//
// Models live in their own package so that crawler, database and report can
// share them without import cycles.
package model
