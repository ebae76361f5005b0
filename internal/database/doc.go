// Package database provides the SQLite storage engine for siteindex.
//
// A store holds:
//   - pages, one row per crawled path, with title, language, markup, text
//     and content fingerprint
//   - components and links, each stored once and associated with pages
//     through page_components and page_links
//   - pages_fts, an FTS5 index over path and markup kept in sync by triggers
//   - fetch errors, redirects and crawl runs recorded by the crawler
//
// Design decision: components and links are normalized into their own
// tables instead of JSON columns on the page row. Questions such as "which
// pages use o-hero" become an indexed join rather than a full scan, at the
// cost of a few extra statements per page write. All statements of one
// page write run in a single transaction, so a page is never visible
// without its associations.
//
// The store uses modernc.org/sqlite, a CGO-free driver whose build includes
// FTS5.
package database
