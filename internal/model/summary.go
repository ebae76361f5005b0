package model

import (
	"sort"
	"time"
)

// Usage counts how many pages reference a component or link.
type Usage struct {
	Name  string `json:"name"`
	Pages int    `json:"pages"`
}

// Summary is the aggregated content of a store, rendered by the report
// writers.
type Summary struct {
	Database    string       `json:"database"`
	GeneratedAt time.Time    `json:"generated_at"`
	Pages       int          `json:"pages"`
	Components  []Usage      `json:"components"`
	Links       []Usage      `json:"links"`
	Errors      []FetchError `json:"errors"`
	Redirects   []Redirect   `json:"redirects"`
	Crawls      []CrawlRun   `json:"crawls"`
}

// LatestCrawl returns the most recently started crawl run, or nil.
func (s *Summary) LatestCrawl() *CrawlRun {
	var latest *CrawlRun
	for i := range s.Crawls {
		if latest == nil || s.Crawls[i].StartedAt.After(latest.StartedAt) {
			latest = &s.Crawls[i]
		}
	}
	return latest
}

// Comparison lists the differences between two stores, keyed by path.
type Comparison struct {
	Old     string   `json:"old"`
	New     string   `json:"new"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
	Same    int      `json:"unchanged"`
}

// Compare builds a Comparison from two path→content hash maps.
// Result slices are sorted.
func Compare(oldHashes, newHashes map[string]string) *Comparison {
	c := &Comparison{
		Added:   make([]string, 0),
		Removed: make([]string, 0),
		Changed: make([]string, 0),
	}

	for path, newHash := range newHashes {
		oldHash, ok := oldHashes[path]
		switch {
		case !ok:
			c.Added = append(c.Added, path)
		case oldHash != newHash:
			c.Changed = append(c.Changed, path)
		default:
			c.Same++
		}
	}
	for path := range oldHashes {
		if _, ok := newHashes[path]; !ok {
			c.Removed = append(c.Removed, path)
		}
	}

	sort.Strings(c.Added)
	sort.Strings(c.Removed)
	sort.Strings(c.Changed)
	return c
}

// HasChanges reports whether any page was added, removed or changed.
func (c *Comparison) HasChanges() bool {
	return len(c.Added)+len(c.Removed)+len(c.Changed) > 0
}
