package config

import (
	"strings"
	"time"
)

// CrawlSection holds the crawl options of the configuration file.
// The same shape is used for the global crawl section and for per-host
// overrides under sites.
type CrawlSection struct {
	// ExcludedPathPattern is a regular expression of paths never fetched.
	// An explicit empty string disables the check.
	ExcludedPathPattern *string `yaml:"excludedPathPattern,omitempty"`

	// ExcludedExtensions replaces the default excluded file extensions.
	ExcludedExtensions []string `yaml:"excludedExtensions,omitempty"`

	MaxConcurrency int           `yaml:"maxConcurrency,omitempty"`
	MaxPages       int           `yaml:"maxPages,omitempty"`
	MaxDepth       int           `yaml:"maxDepth,omitempty"`
	Delay          time.Duration `yaml:"delay,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	UserAgent      string        `yaml:"userAgent,omitempty"`

	// DuplicatePolicy is "insert" or "replace".
	DuplicatePolicy string `yaml:"duplicatePolicy,omitempty"`

	RespectRobots       bool `yaml:"respectRobots,omitempty"`
	Minify              bool `yaml:"minify,omitempty"`
	UnwrapExternalLinks bool `yaml:"unwrapExternalLinks,omitempty"`

	// Cookie is sent as the Cookie header.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// IgnorePatterns are path globs to skip during crawling.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are path globs to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// ChromeSelectors identify header and footer markup.
	ChromeSelectors []string `yaml:"chromeSelectors,omitempty"`
}

// requestHeaders returns Headers plus the Cookie header when set.
func (s CrawlSection) requestHeaders() map[string]string {
	if s.Cookie == "" {
		return s.Headers
	}
	out := make(map[string]string, len(s.Headers)+1)
	for k, v := range s.Headers {
		out[k] = v
	}
	out["Cookie"] = s.Cookie
	return out
}

// File represents the structure of the .siteindex configuration file.
type File struct {
	// Crawl holds options applied to every crawl.
	Crawl CrawlSection `yaml:"crawl,omitempty"`

	// Sites maps host names to overrides of the crawl section.
	// Keys are hosts without scheme (e.g., "www.example.com").
	Sites map[string]CrawlSection `yaml:"sites,omitempty"`
}

// ForHost returns the crawl section for host: the global section with the
// host's overrides merged on top.
func (cf *File) ForHost(host string) CrawlSection {
	result := cf.Crawl
	site, ok := cf.Sites[strings.ToLower(host)]
	if !ok {
		return result
	}

	if site.ExcludedPathPattern != nil {
		result.ExcludedPathPattern = site.ExcludedPathPattern
	}
	if site.ExcludedExtensions != nil {
		result.ExcludedExtensions = site.ExcludedExtensions
	}
	if site.MaxConcurrency != 0 {
		result.MaxConcurrency = site.MaxConcurrency
	}
	if site.MaxPages != 0 {
		result.MaxPages = site.MaxPages
	}
	if site.MaxDepth != 0 {
		result.MaxDepth = site.MaxDepth
	}
	if site.Delay != 0 {
		result.Delay = site.Delay
	}
	if site.Timeout != 0 {
		result.Timeout = site.Timeout
	}
	if site.UserAgent != "" {
		result.UserAgent = site.UserAgent
	}
	if site.DuplicatePolicy != "" {
		result.DuplicatePolicy = site.DuplicatePolicy
	}
	result.RespectRobots = result.RespectRobots || site.RespectRobots
	result.Minify = result.Minify || site.Minify
	result.UnwrapExternalLinks = result.UnwrapExternalLinks || site.UnwrapExternalLinks
	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if len(site.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(site.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range site.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if site.IgnorePatterns != nil {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if site.FollowPatterns != nil {
		result.FollowPatterns = site.FollowPatterns
	}
	if site.ChromeSelectors != nil {
		result.ChromeSelectors = site.ChromeSelectors
	}
	return result
}
