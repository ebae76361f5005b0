package model

import (
	"net/url"
	"time"
)

// PageRecord is a crawled HTML page ready to be persisted.
// It is the unit handed from the crawler to the storage engine.
type PageRecord struct {
	// ID is the database row id. Zero until the record has been stored.
	ID int64 `json:"id,omitempty"`

	// Path is the URL path identifying the page within the crawled host.
	// It is the uniqueness key of the pages table.
	Path string `json:"path"`

	// URL is the full URL the page was fetched from.
	URL string `json:"url"`

	// PageID is the short stable identifier derived from URL.
	PageID string `json:"page_id"`

	// Title is the text of the first <title> element, empty if absent.
	Title string `json:"title"`

	// Language is the lang attribute of the <html> element, empty if absent.
	Language string `json:"language,omitempty"`

	// HTML is the stored markup (minified when enabled).
	HTML string `json:"-"`

	// Text is the collapsed visible body text.
	Text string `json:"-"`

	// ContentHash is the fingerprint of the raw response body.
	ContentHash string `json:"content_hash"`

	// CrawledAt is the time the page was fetched.
	CrawledAt time.Time `json:"crawled_at"`

	// Components are the design-system class tokens used on the page.
	Components []string `json:"components"`

	// Links are the href values of anchors outside header and footer.
	// Duplicates are allowed; storage records each distinct link once.
	Links []string `json:"links"`
}

// PathFromURL returns the value stored in PageRecord.Path for a URL.
// The query string is kept so that paginated listings are distinct pages.
// An empty path is reported as "/".
func PathFromURL(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// UniqueComponents returns Components without duplicates, first-seen order.
func (p *PageRecord) UniqueComponents() []string {
	return uniqueStrings(p.Components)
}

// UniqueLinks returns Links without duplicates, first-seen order.
// Blank hrefs are kept: an anchor with href="" is still a link.
func (p *PageRecord) UniqueLinks() []string {
	return uniqueStrings(p.Links)
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// PageSummary is a lightweight view of a stored page used by lookups.
type PageSummary struct {
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Language  string    `json:"language,omitempty"`
	CrawledAt time.Time `json:"crawled_at"`

	// Match is the component name or link URL that selected the page,
	// set by substring membership queries.
	Match string `json:"match,omitempty"`
}

// SearchHit is one full-text search result.
type SearchHit struct {
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}
