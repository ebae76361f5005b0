package progress

// Observer receives crawl progress events. Implementations must be safe
// for concurrent use.
type Observer interface {
	// Start is called once before the first page with the estimated total.
	Start(total int)
	// Accepted is called once per page written or refreshed in storage.
	// Pages skipped as duplicates are not reported.
	Accepted(path string)
	// Finish is called once when the crawl ends.
	Finish()
}

// DefaultEstimate is the page total assumed when no previous crawl exists.
const DefaultEstimate = 25900

// EstimateTotal returns the larger of the stored page count of a previous
// crawl and fallback.
func EstimateTotal(prior, fallback int) int {
	return max(prior, fallback)
}

type nop struct{}

func (nop) Start(int)       {}
func (nop) Accepted(string) {}
func (nop) Finish()         {}

// Nop returns an Observer that does nothing.
func Nop() Observer {
	return nop{}
}

type multi []Observer

// Multi returns an Observer forwarding every event to all observers, in
// order. Nil observers are skipped.
func Multi(observers ...Observer) Observer {
	m := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multi) Start(total int) {
	for _, o := range m {
		safely(func() { o.Start(total) })
	}
}

func (m multi) Accepted(path string) {
	for _, o := range m {
		safely(func() { o.Accepted(path) })
	}
}

func (m multi) Finish() {
	for _, o := range m {
		safely(func() { o.Finish() })
	}
}

// safely runs fn and swallows a panic so one broken observer cannot take
// the crawl down.
func safely(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
