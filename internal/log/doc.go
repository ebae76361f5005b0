// Package log builds the application's slog logger.
//
// Every logger returned by NewLogger wraps its text or JSON handler in a
// SanitizingHandler. Crawl options may carry credentials (a Cookie or an
// Authorization header for a staging site, a URL with user info), and
// those values must never reach a log file:
//   - attributes whose key names an HTTP credential header or a secret
//     are replaced with MaskValue
//   - bearer and basic authorization values are masked under any key
//   - passwords embedded in URLs are masked, the rest of the URL is kept
//
// Content hashes and page identifiers are hex strings and are logged as
// they are.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose, false)
//	slog.SetDefault(logger)
//	logger.Warn("fetch failed", slog.String("url", u), slog.String("error", err.Error()))
package log
