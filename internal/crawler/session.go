package crawler

import (
	"net/url"
	"sync"
)

// URLState is the position of a URL in the crawl state machine:
//
//	Discovered -> FilteredOut
//	Discovered -> Fetching -> Fetched -> Accepted | Rejected
//	Discovered -> Fetching -> Failed
type URLState int

const (
	// StateDiscovered means the URL is known and waiting in the frontier.
	StateDiscovered URLState = iota
	// StateFilteredOut means a pre-fetch filter rejected the URL.
	StateFilteredOut
	// StateFetching means a worker is requesting the URL.
	StateFetching
	// StateFetched means a response arrived and is being examined.
	StateFetched
	// StateAccepted means the page passed post-fetch filters and was handed
	// to storage.
	StateAccepted
	// StateRejected means the response failed a post-fetch filter or was
	// not a successful HTML response.
	StateRejected
	// StateFailed means the fetch or the page write failed.
	StateFailed
)

// String returns the state name.
func (s URLState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateFilteredOut:
		return "filtered-out"
	case StateFetching:
		return "fetching"
	case StateFetched:
		return "fetched"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats counts what happened during one crawl.
type Stats struct {
	// Discovered is the number of distinct URLs seen.
	Discovered int
	// FilteredOut is the number of URLs rejected before fetching.
	FilteredOut int
	// Fetched is the number of requests that produced a response.
	Fetched int
	// Accepted is the number of pages written to the store, unchanged
	// replacements included.
	Accepted int
	// Rejected is the number of responses that were not stored HTML pages.
	Rejected int
	// Failed is the number of URLs whose fetch or write failed.
	Failed int
	// Duplicates is the number of pages skipped because their path was
	// already stored.
	Duplicates int
	// Unchanged is the number of replacements with an identical hash.
	Unchanged int
	// StorageFailures is the number of page writes that failed.
	StorageFailures int
}

// crawlItem is a frontier entry.
type crawlItem struct {
	url      *url.URL
	key      string
	referrer string
	// depth is the number of links followed from the start URL.
	depth int
}

// session holds the mutable state of one Crawl call: the seen set, the
// frontier and the counters. Redirect handling in worker goroutines marks
// URLs as seen, so every method locks.
type session struct {
	mu sync.Mutex

	states   map[string]URLState
	frontier []crawlItem
	inflight int
	launched int
	stats    Stats

	consecutiveStorageFailures int
}

func newSession() *session {
	return &session{
		states:   make(map[string]URLState),
		frontier: make([]crawlItem, 0),
	}
}

// discover adds u to the frontier at depth unless it was seen before. It
// reports whether u was new.
func (s *session) discover(u *url.URL, referrer string, depth int) bool {
	key := normalizeURL(u)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[key]; ok {
		return false
	}
	s.states[key] = StateDiscovered
	s.frontier = append(s.frontier, crawlItem{url: u, key: key, referrer: referrer, depth: depth})
	s.stats.Discovered++
	return true
}

// claim marks u as seen without queueing it, for redirect targets that are
// fetched as part of another request. It reports whether u was new.
func (s *session) claim(u *url.URL) bool {
	key := normalizeURL(u)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[key]; ok {
		return false
	}
	s.states[key] = StateFetching
	s.stats.Discovered++
	return true
}

// next pops the oldest frontier entry.
func (s *session) next() (crawlItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frontier) == 0 {
		return crawlItem{}, false
	}
	item := s.frontier[0]
	s.frontier[0] = crawlItem{}
	s.frontier = s.frontier[1:]
	return item, true
}

func (s *session) setState(key string, state URLState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = state
}

// State returns the recorded state of a normalized URL.
func (s *session) state(u *url.URL) (URLState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[normalizeURL(u)]
	return st, ok
}

func (s *session) filteredOut(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = StateFilteredOut
	s.stats.FilteredOut++
}

// begin records a launched fetch.
func (s *session) begin(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = StateFetching
	s.inflight++
	s.launched++
}

// inFlight returns the number of running fetches.
func (s *session) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// launchedCount returns the number of fetches started so far.
func (s *session) launchedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}

// complete records the outcome of a fetch and returns the number of
// consecutive storage failures after it.
func (s *session) complete(o *outcome) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	s.states[o.key] = o.state
	if o.fetched {
		s.stats.Fetched++
	}

	switch o.state {
	case StateAccepted:
		switch {
		case o.duplicate:
			s.stats.Duplicates++
		case o.unchanged:
			s.stats.Accepted++
			s.stats.Unchanged++
		default:
			s.stats.Accepted++
		}
		s.consecutiveStorageFailures = 0
	case StateRejected:
		s.stats.Rejected++
	case StateFailed:
		s.stats.Failed++
	}

	if o.storageErr != nil {
		s.stats.StorageFailures++
		s.consecutiveStorageFailures++
	}
	return s.consecutiveStorageFailures
}

func (s *session) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
