package model

import "time"

// CrawlStatus is the lifecycle state of a CrawlRun.
type CrawlStatus string

// Crawl run states.
const (
	CrawlStatusRunning   CrawlStatus = "running"
	CrawlStatusComplete  CrawlStatus = "complete"
	CrawlStatusCancelled CrawlStatus = "cancelled"
	CrawlStatusFailed    CrawlStatus = "failed"
)

// CrawlRun records one invocation of the crawler against a store.
type CrawlRun struct {
	ID         string      `json:"id"`
	StartURL   string      `json:"start_url"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at,omitzero"`
	Status     CrawlStatus `json:"status"`

	PagesStored int `json:"pages_stored"`
	Duplicates  int `json:"duplicates"`
	Failures    int `json:"failures"`
}

// Duration returns how long the run took, or zero while it is running.
func (c *CrawlRun) Duration() time.Duration {
	if c.FinishedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}

// FetchError is a URL that could not be turned into a page:
// a network failure (StatusCode 0) or a 4xx/5xx response.
type FetchError struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Referrer   string    `json:"referrer,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Redirect is a 3xx hop observed while fetching a URL.
type Redirect struct {
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Location   string    `json:"location"`
	Referrer   string    `json:"referrer,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
