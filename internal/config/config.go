package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/siteindex/internal/crawler"
	"github.com/nao1215/siteindex/internal/database"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "siteindex"

	// DefaultDatabaseFile is the database file name inside XDGDataDir.
	DefaultDatabaseFile = "crawl.sqlite3"

	// DefaultTimeout bounds a single HTTP request, redirects included.
	// Site pages are served from a CDN; 30 seconds only trips on pages
	// that are genuinely stuck.
	DefaultTimeout = 30 * time.Second

	// DefaultTopN is the number of entries shown in usage tables of a report.
	DefaultTopN = 25
)

// Config holds all options of a siteindex run.
// It is populated from defaults, then the config file, then CLI flags, and
// passed through the application rather than kept in global state.
//
// Design decision: We use a single flat struct, as the CLI does, because
// every option maps to exactly one flag and one YAML key.
type Config struct {
	// StartURL is where the crawl begins. Only pages on its host are stored.
	StartURL string

	// DatabasePath is the SQLite file written by crawl and read by the
	// query commands.
	DatabasePath string

	// ConfigFilePath is the path to the configuration file.
	// If empty, .siteindex is searched in the current directory and then
	// in the user's home directory.
	ConfigFilePath string

	// MaxConcurrency bounds pages being fetched, parsed and stored at once.
	MaxConcurrency int

	// MaxPages caps the number of fetches. Zero means no limit.
	MaxPages int

	// MaxDepth is the number of links followed from the start URL.
	// Zero means no limit.
	MaxDepth int

	// Delay spaces request starts. Zero disables rate limiting.
	Delay time.Duration

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string

	// Headers are extra request headers. They may carry credentials and are
	// masked in logs.
	Headers map[string]string

	// MaxBodySize is the maximum number of response bytes read per page.
	MaxBodySize int64

	// ExcludedPathPattern is a regular expression of paths never fetched.
	ExcludedPathPattern string

	// ExcludedExtensions are file extensions never fetched.
	ExcludedExtensions []string

	// IgnorePatterns are path globs to skip.
	IgnorePatterns []string

	// FollowPatterns, when set, restrict the crawl to matching paths.
	FollowPatterns []string

	// ChromeSelectors identify header and footer markup whose links are not
	// recorded.
	ChromeSelectors []string

	// RespectRobots enables robots.txt checks.
	RespectRobots bool

	// DuplicatePolicy is "insert" or "replace".
	DuplicatePolicy string

	// Minify stores minified HTML instead of the raw response.
	Minify bool

	// UnwrapExternalLinks records the ext_url target of outbound redirect
	// links instead of the redirect link itself.
	UnwrapExternalLinks bool

	// Recreate drops every table before crawling.
	Recreate bool

	// Quiet disables the progress bar.
	Quiet bool

	// Verbose enables debug logging.
	Verbose bool

	// JSONLog switches log output to JSON.
	JSONLog bool

	// MetricsAddr, when set, serves Prometheus metrics on this address
	// during the crawl.
	MetricsAddr string
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because most defaults are non-zero. This also serves as
// documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		DatabasePath:        DefaultDatabasePath(),
		MaxConcurrency:      crawler.DefaultMaxConcurrency,
		Timeout:             DefaultTimeout,
		UserAgent:           crawler.DefaultUserAgent,
		MaxBodySize:         crawler.DefaultMaxBodySize,
		ExcludedPathPattern: crawler.DefaultExcludedPathPattern,
		ExcludedExtensions:  append([]string(nil), crawler.DefaultExcludedExtensions...),
		ChromeSelectors:     append([]string(nil), crawler.DefaultChromeSelectors...),
		DuplicatePolicy:     string(database.PolicyInsertOnly),
	}
}

// XDGDataDir returns the XDG data directory for siteindex.
// On Linux: ~/.local/share/siteindex
// On macOS: ~/Library/Application Support/siteindex
// On Windows: %LOCALAPPDATA%\siteindex
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultDatabasePath returns the database used when none is given.
func DefaultDatabasePath() string {
	return filepath.Join(XDGDataDir(), DefaultDatabaseFile)
}

// Apply copies the values set in section onto c.
// Zero values in section leave c unchanged, except ExcludedPathPattern,
// which is a pointer so that an empty string can disable the check.
func (c *Config) Apply(section CrawlSection) {
	if section.ExcludedPathPattern != nil {
		c.ExcludedPathPattern = *section.ExcludedPathPattern
	}
	if section.ExcludedExtensions != nil {
		c.ExcludedExtensions = section.ExcludedExtensions
	}
	if section.MaxConcurrency != 0 {
		c.MaxConcurrency = section.MaxConcurrency
	}
	if section.MaxPages != 0 {
		c.MaxPages = section.MaxPages
	}
	if section.MaxDepth != 0 {
		c.MaxDepth = section.MaxDepth
	}
	if section.Delay != 0 {
		c.Delay = section.Delay
	}
	if section.Timeout != 0 {
		c.Timeout = section.Timeout
	}
	if section.UserAgent != "" {
		c.UserAgent = section.UserAgent
	}
	if section.DuplicatePolicy != "" {
		c.DuplicatePolicy = section.DuplicatePolicy
	}
	if section.RespectRobots {
		c.RespectRobots = true
	}
	if section.Minify {
		c.Minify = true
	}
	if section.UnwrapExternalLinks {
		c.UnwrapExternalLinks = true
	}
	if section.IgnorePatterns != nil {
		c.IgnorePatterns = section.IgnorePatterns
	}
	if section.FollowPatterns != nil {
		c.FollowPatterns = section.FollowPatterns
	}
	if section.ChromeSelectors != nil {
		c.ChromeSelectors = section.ChromeSelectors
	}

	headers := section.requestHeaders()
	if len(headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			c.Headers[k] = v
		}
	}
}

// Validate checks the options used by a crawl.
// It returns the first problem found as a sentinel error.
//
// Design decision: We validate once, after flags and file are merged, to
// fail before the database is opened or any request is sent.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return ErrNoStartURL
	}
	u, err := url.Parse(c.StartURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidStartURL, c.StartURL)
	}

	if c.DatabasePath == "" {
		return ErrNoDatabase
	}

	if c.MaxConcurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Delay < 0 {
		return ErrInvalidDelay
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if _, err := database.ParseDuplicatePolicy(c.DuplicatePolicy); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDuplicatePolicy, c.DuplicatePolicy)
	}

	return nil
}
