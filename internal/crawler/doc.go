// Package crawler discovers, fetches and parses the pages of one website.
//
// # Architecture
//
// The package is built around the Spider type. A call to Spider.Crawl
// creates a session holding the seen set and a FIFO frontier, then runs a
// coordinator loop that hands URLs to a bounded pool of workers. Each
// worker fetches one URL, parses it with a Parser and writes the result
// to a PageStore. Links found on accepted pages flow back to the
// coordinator, which is the only goroutine that grows the frontier.
//
// Design decision: We implement our own crawler rather than using a
// third-party framework because:
//  1. Every URL must move through an explicit state machine that the
//     tests and the progress reporting can observe
//  2. Redirect targets must be claimed in the same seen set as links
//  3. Storage failures must be able to abort the crawl
//
// # Components
//
//   - Spider: coordinates the crawl and owns per-crawl sessions
//   - Filter: pre-fetch (scheme, host, path, extension, robots) and
//     post-fetch (content type, final host) checks
//   - Parser: extracts title, language, visible text, links and
//     design-system components with goquery
//   - RobotsEnforcer: optional robots.txt checks
//
// # Politeness
//
//   - Concurrency is bounded (default 10)
//   - An optional delay spaces request starts
//   - robots.txt is honoured when enabled
//   - Response bodies are read up to a size limit
//
// # Usage
//
//	spider := crawler.NewSpider(httpClient, db, crawler.WithMaxConcurrency(4))
//	stats, err := spider.Crawl(ctx, "https://www.example.com/")
package crawler
