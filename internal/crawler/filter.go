package crawler

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nao1215/siteindex/internal/model"
)

// DefaultExcludedPathPattern matches the site's outbound redirect pages.
const DefaultExcludedPathPattern = "/external-site/"

// DefaultExcludedExtensions are file types that are never HTML pages.
var DefaultExcludedExtensions = []string{
	"png", "jpg", "jpeg", "gif", "ico", "css", "js", "csv", "doc", "docx",
	"svg", "pdf", "xls", "json", "ttf", "xml", "woff", "eot", "zip", "wav",
}

// Filter reasons reported alongside a rejection.
const (
	reasonScheme       = "scheme"
	reasonHost         = "host"
	reasonExcludedPath = "excluded path"
	reasonExtension    = "extension"
	reasonIgnored      = "ignore pattern"
	reasonNotFollowed  = "follow pattern"
	reasonRobots       = "robots.txt"
	reasonContentType  = "content type"
)

// FilterOptions configures a Filter.
type FilterOptions struct {
	// ExcludedPathPattern is a regular expression matched against the URL
	// path. Empty disables the check.
	ExcludedPathPattern string

	// ExcludedExtensions are file extensions, without the dot, matched
	// against the path and query.
	ExcludedExtensions []string

	// IgnorePatterns skip paths matching any glob.
	IgnorePatterns []string

	// FollowPatterns, when set, restrict the crawl to paths matching at
	// least one glob.
	FollowPatterns []string

	// Robots, when non-nil, is consulted for every URL.
	Robots RobotsPolicy
}

// Filter decides which URLs belong to a crawl of one host.
type Filter struct {
	host           string
	excludedPath   *regexp.Regexp
	excludedExt    *regexp.Regexp
	ignorePatterns []string
	followPatterns []string
	robots         RobotsPolicy
}

// NewFilter builds a Filter for URLs on target's host.
func NewFilter(target *url.URL, opts FilterOptions) (*Filter, error) {
	f := &Filter{
		host:           strings.ToLower(target.Host),
		ignorePatterns: opts.IgnorePatterns,
		followPatterns: opts.FollowPatterns,
		robots:         opts.Robots,
	}

	if opts.ExcludedPathPattern != "" {
		re, err := regexp.Compile(opts.ExcludedPathPattern)
		if err != nil {
			return nil, fmt.Errorf("%w: excluded path %q: %w", ErrInvalidPattern, opts.ExcludedPathPattern, err)
		}
		f.excludedPath = re
	}

	re, err := extensionPattern(opts.ExcludedExtensions)
	if err != nil {
		return nil, err
	}
	f.excludedExt = re

	return f, nil
}

// extensionPattern compiles \.(ext1|ext2|...) with the extensions quoted.
// It returns nil for an empty list.
func extensionPattern(exts []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			quoted = append(quoted, regexp.QuoteMeta(ext))
		}
	}
	if len(quoted) == 0 {
		return nil, nil
	}
	re, err := regexp.Compile(`(?i)\.(` + strings.Join(quoted, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("%w: extensions: %w", ErrInvalidPattern, err)
	}
	return re, nil
}

// Allow applies the pre-fetch checks to u. When u is rejected the second
// return value names the check that failed.
func (f *Filter) Allow(ctx context.Context, u *url.URL) (bool, string) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, reasonScheme
	}
	if !f.SameHost(u) {
		return false, reasonHost
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if f.excludedPath != nil && f.excludedPath.MatchString(path) {
		return false, reasonExcludedPath
	}
	if f.excludedExt != nil && f.excludedExt.MatchString(model.PathFromURL(u)) {
		return false, reasonExtension
	}
	if !f.shouldCrawl(path) {
		if len(f.followPatterns) > 0 && !f.ignored(path) {
			return false, reasonNotFollowed
		}
		return false, reasonIgnored
	}
	if f.robots != nil && !f.robots.Allowed(ctx, u) {
		return false, reasonRobots
	}
	return true, ""
}

// AllowResponse applies the post-fetch checks: the response must be HTML
// and must have been served by the target host.
func (f *Filter) AllowResponse(final *url.URL, contentType string) (bool, string) {
	if !isHTML(contentType) {
		return false, reasonContentType
	}
	if !f.SameHost(final) {
		return false, reasonHost
	}
	return true, ""
}

// SameHost reports whether u is on the crawled host, ignoring case.
func (f *Filter) SameHost(u *url.URL) bool {
	return strings.EqualFold(u.Host, f.host)
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mediaType == "text/html"
}

// shouldCrawl applies ignore and follow globs to path.
//
// Logic:
//  1. If path matches any ignore pattern, skip it
//  2. If follow patterns are set and path matches none, skip it
//  3. Otherwise, crawl it
func (f *Filter) shouldCrawl(path string) bool {
	if f.ignored(path) {
		return false
	}
	if len(f.followPatterns) == 0 {
		return true
	}
	for _, pattern := range f.followPatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

func (f *Filter) ignored(path string) bool {
	for _, pattern := range f.ignorePatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//   - a trailing /* to match everything below a prefix
//
// Examples:
//   - "/admin/*" matches "/admin/dashboard" and "/admin/users/edit"
//   - "*.pdf" matches "/docs/file.pdf"
//   - "/api/v?" matches "/api/v1"
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	// Slash-free patterns also match the last path segment.
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}

// normalizeURL returns the seen-set key of u: fragment removed, scheme and
// host lowercased, empty path replaced with "/".
func normalizeURL(u *url.URL) string {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	return n.String()
}

// resolveLink resolves href against base and drops the fragment. It
// returns nil for hrefs that do not parse or point nowhere useful.
func resolveLink(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	u, err := url.Parse(href)
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(u)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved
}
