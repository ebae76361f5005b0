package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/siteindex/internal/database"
	"github.com/nao1215/siteindex/internal/fingerprint"
	"github.com/nao1215/siteindex/internal/model"
	"github.com/nao1215/siteindex/internal/progress"
)

// Defaults applied by NewSpider.
const (
	DefaultMaxConcurrency     = 10
	DefaultMaxBodySize        = 10 * 1024 * 1024
	DefaultMaxRedirects       = 10
	DefaultMaxStorageFailures = 5
	DefaultUserAgent          = "siteindex/1.0 (+https://github.com/nao1215/siteindex)"
)

// PageStore is the part of the storage engine the spider writes to.
// *database.DB satisfies it.
type PageStore interface {
	InsertPage(ctx context.Context, rec *model.PageRecord) (database.InsertResult, error)
	InsertFetchError(ctx context.Context, fe *model.FetchError) error
	InsertRedirect(ctx context.Context, r *model.Redirect) error
}

// ChangeDetector is implemented by stores that can refresh an unchanged
// page without a rewrite. When the store replaces pages, the spider asks
// it for the stored hash first and skips parsing on a match.
// *database.DB satisfies it.
type ChangeDetector interface {
	Policy() database.DuplicatePolicy
	PageHash(ctx context.Context, path string) (string, bool, error)
	PageLinks(ctx context.Context, path string) ([]string, error)
	RefreshPage(ctx context.Context, path, pageURL, hash string, crawledAt time.Time) (bool, error)
}

// Spider crawls every reachable HTML page of one host and hands each page
// to a PageStore.
//
// Design decision: We call it "Spider" rather than "Crawler" because:
//  1. "Spider" is the traditional term for web crawlers
//  2. Distinguishes the component from the package name
//  3. Clearer in code: crawler.NewSpider() vs crawler.NewCrawler()
//
// A Spider holds configuration only. All per-crawl state lives in a
// session created by Crawl, so one Spider can run several crawls, even
// concurrently.
type Spider struct {
	client *http.Client
	store  PageStore
	parser *Parser
	logger *slog.Logger

	maxConcurrency     int
	maxPages           int
	maxDepth           int
	maxBodySize        int64
	maxRedirects       int
	maxStorageFailures int
	delay              time.Duration
	userAgent          string
	headers            map[string]string

	excludedPathPattern string
	excludedExtensions  []string
	ignorePatterns      []string
	followPatterns      []string
	respectRobots       bool

	observer progress.Observer
	estimate int
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxConcurrency bounds the number of pages fetched, parsed and stored
// at the same time. Values below 1 are ignored.
func WithMaxConcurrency(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

// WithMaxPages stops launching fetches after n requests. Zero means no
// limit.
func WithMaxPages(n int) SpiderOption {
	return func(s *Spider) {
		s.maxPages = n
	}
}

// WithMaxDepth stops following links from pages n links away from the
// start URL. The start URL has depth 0. Zero means no limit.
func WithMaxDepth(n int) SpiderOption {
	return func(s *Spider) {
		if n >= 0 {
			s.maxDepth = n
		}
	}
}

// WithDelay spaces request starts at least d apart.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.delay = d
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithHeaders adds request headers.
func WithHeaders(headers map[string]string) SpiderOption {
	return func(s *Spider) {
		s.headers = headers
	}
}

// WithMaxBodySize limits how many bytes of a response are read.
func WithMaxBodySize(size int64) SpiderOption {
	return func(s *Spider) {
		if size > 0 {
			s.maxBodySize = size
		}
	}
}

// WithMaxStorageFailures aborts the crawl after n consecutive failed page
// writes.
func WithMaxStorageFailures(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.maxStorageFailures = n
		}
	}
}

// WithExcludedPathPattern sets the regular expression of paths never
// fetched. An empty pattern disables the check.
func WithExcludedPathPattern(pattern string) SpiderOption {
	return func(s *Spider) {
		s.excludedPathPattern = pattern
	}
}

// WithExcludedExtensions replaces the file extensions never fetched.
func WithExcludedExtensions(exts []string) SpiderOption {
	return func(s *Spider) {
		s.excludedExtensions = exts
	}
}

// WithIgnorePatterns sets URL path globs to skip (e.g. "/admin/*", "*.pdf").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts the crawl to paths matching at least one
// glob. Empty means all paths are allowed.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithRespectRobots enables robots.txt checks.
func WithRespectRobots(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.respectRobots = enabled
	}
}

// WithParser replaces the page parser.
func WithParser(p *Parser) SpiderOption {
	return func(s *Spider) {
		if p != nil {
			s.parser = p
		}
	}
}

// WithProgress reports accepted pages to observer. estimate is passed to
// observer.Start.
func WithProgress(observer progress.Observer, estimate int) SpiderOption {
	return func(s *Spider) {
		s.observer = observer
		s.estimate = estimate
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider returns a Spider fetching with client and writing to store.
//
// Design decision: We require an external client because:
//  1. Timeouts and transports are the caller's concern
//  2. Tests can point the spider at an httptest server
func NewSpider(client *http.Client, store PageStore, opts ...SpiderOption) *Spider {
	if client == nil {
		client = http.DefaultClient
	}
	s := &Spider{
		client:              client,
		store:               store,
		parser:              NewParser(),
		logger:              slog.Default(),
		maxConcurrency:      DefaultMaxConcurrency,
		maxBodySize:         DefaultMaxBodySize,
		maxRedirects:        DefaultMaxRedirects,
		maxStorageFailures:  DefaultMaxStorageFailures,
		userAgent:           DefaultUserAgent,
		excludedPathPattern: DefaultExcludedPathPattern,
		excludedExtensions:  DefaultExcludedExtensions,
		observer:            progress.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome is what a worker reports back to the coordinator.
type outcome struct {
	key        string
	path       string
	depth      int
	state      URLState
	fetched    bool
	duplicate  bool
	unchanged  bool
	storageErr error
	page       *url.URL
	links      []string
}

// Crawl fetches startURL and every same-host page reachable from it.
//
// A coordinator loop owns the frontier and launches at most
// MaxConcurrency workers; each worker fetches, parses and stores one page
// and reports the links it found. The crawl ends when the frontier is
// empty and no worker is running.
//
// Individual fetch, parse and duplicate outcomes never stop the crawl.
// Crawl returns an error when the start URL is invalid, when ctx is
// cancelled (in-flight pages are abandoned and not stored) or after too
// many consecutive storage failures.
func (s *Spider) Crawl(ctx context.Context, startURL string) (Stats, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrInvalidStartURL, err)
	}
	if (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return Stats{}, fmt.Errorf("%w: %q", ErrInvalidStartURL, startURL)
	}

	filterOpts := FilterOptions{
		ExcludedPathPattern: s.excludedPathPattern,
		ExcludedExtensions:  s.excludedExtensions,
		IgnorePatterns:      s.ignorePatterns,
		FollowPatterns:      s.followPatterns,
	}
	if s.respectRobots {
		filterOpts.Robots = NewRobotsEnforcer(s.client, s.userAgent, s.logger)
	}
	filter, err := NewFilter(start, filterOpts)
	if err != nil {
		return Stats{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := newSession()
	client := s.crawlClient(sess, filter)

	var limiter *rate.Limiter
	if s.delay > 0 {
		limiter = rate.NewLimiter(rate.Every(s.delay), 1)
	}

	s.observer.Start(s.estimate)
	defer s.observer.Finish()

	s.logger.Info("crawl started",
		slog.String("url", start.String()),
		slog.Int("concurrency", s.maxConcurrency))

	results := make(chan *outcome)
	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)

	sess.discover(start, "", 0)

	var fatal error
	for {
		for fatal == nil && ctx.Err() == nil && sess.inFlight() < s.maxConcurrency {
			if s.maxPages > 0 && sess.launchedCount() >= s.maxPages {
				break
			}
			item, ok := sess.next()
			if !ok {
				break
			}
			if allowed, reason := filter.Allow(ctx, item.url); !allowed {
				sess.filteredOut(item.key)
				s.logger.Debug("filtered out",
					slog.String("url", item.url.String()),
					slog.String("reason", reason))
				continue
			}

			sess.begin(item.key)
			g.Go(func() error {
				results <- s.process(ctx, client, filter, sess, limiter, item)
				return nil
			})
		}

		if sess.inFlight() == 0 {
			break
		}

		o := <-results
		failures := sess.complete(o)
		if o.storageErr != nil && failures >= s.maxStorageFailures && fatal == nil {
			fatal = fmt.Errorf("%w: %d in a row, last: %w", ErrTooManyStorageFailures, failures, o.storageErr)
			s.logger.Error("aborting crawl", slog.String("error", fatal.Error()))
			cancel()
		}

		if o.state != StateAccepted {
			continue
		}
		if !o.duplicate {
			s.observer.Accepted(o.path)
		}
		if s.maxDepth > 0 && o.depth >= s.maxDepth {
			continue
		}
		for _, href := range o.links {
			if next := resolveLink(o.page, href); next != nil {
				sess.discover(next, o.page.String(), o.depth+1)
			}
		}
	}
	_ = g.Wait()

	stats := sess.snapshot()
	s.logger.Info("crawl finished",
		slog.Int("discovered", stats.Discovered),
		slog.Int("accepted", stats.Accepted),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("failed", stats.Failed))

	if fatal != nil {
		return stats, fatal
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

// process fetches, parses and stores one page. It always returns an
// outcome; errors are logged and recorded, never returned.
func (s *Spider) process(ctx context.Context, client *http.Client, filter *Filter, sess *session, limiter *rate.Limiter, item crawlItem) *outcome {
	o := &outcome{key: item.key, page: item.url, depth: item.depth, state: StateFailed}
	logger := s.logger.With(slog.String("url", item.url.String()))

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return o
		}
	}

	resp, err := s.fetch(ctx, client, item)
	for i := range resp.hops {
		if serr := s.store.InsertRedirect(ctx, &resp.hops[i]); serr != nil && ctx.Err() == nil {
			logger.Warn("failed to record redirect", slog.String("error", serr.Error()))
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return o
		}
		logger.Warn("fetch failed", slog.String("error", err.Error()))
		s.recordFetchError(ctx, logger, item, 0, err.Error())
		return o
	}

	o.fetched = true
	sess.setState(item.key, StateFetched)

	switch {
	case resp.statusCode >= http.StatusBadRequest:
		logger.Warn("fetch returned error status", slog.Int("status", resp.statusCode))
		s.recordFetchError(ctx, logger, item, resp.statusCode, http.StatusText(resp.statusCode))
		return o
	case resp.statusCode < http.StatusOK || resp.statusCode >= http.StatusMultipleChoices:
		o.state = StateRejected
		return o
	}

	if ok, reason := filter.AllowResponse(resp.final, resp.contentType); !ok {
		logger.Debug("response rejected", slog.String("reason", reason))
		o.state = StateRejected
		return o
	}

	pageURL := resp.final.String()
	o.page = resp.final
	o.path = model.PathFromURL(resp.final)

	// The hash covers the bytes as served, before any charset conversion.
	hash := fingerprint.Fingerprint(resp.body)
	if links, ok := s.refreshUnchanged(ctx, logger, o.path, pageURL, hash); ok {
		o.state = StateAccepted
		o.unchanged = true
		o.links = links
		return o
	}

	body := DecodeBody(resp.contentType, resp.body)
	parsed := s.parser.Parse(pageURL, body)

	rec := &model.PageRecord{
		Path:        o.path,
		URL:         pageURL,
		PageID:      fingerprint.DeriveID(pageURL),
		Title:       parsed.Title,
		Language:    parsed.Language,
		HTML:        parsed.HTML,
		Text:        parsed.Text,
		ContentHash: hash,
		CrawledAt:   time.Now().UTC(),
		Components:  parsed.Components,
		Links:       parsed.Links,
	}

	if ctx.Err() != nil {
		return o
	}

	res, err := s.store.InsertPage(ctx, rec)
	switch {
	case errors.Is(err, database.ErrDuplicatePage):
		logger.Debug("page already stored", slog.String("path", rec.Path))
		o.state = StateAccepted
		o.duplicate = true
	case err != nil:
		if ctx.Err() == nil {
			logger.Error("failed to store page", slog.String("path", rec.Path), slog.String("error", err.Error()))
			o.storageErr = err
		}
		return o
	default:
		o.state = StateAccepted
		o.unchanged = res.Unchanged
	}

	o.links = parsed.Links
	return o
}

// refreshUnchanged refreshes the stored page under path without parsing
// when the store replaces pages and already holds hash for it. It returns
// the stored links and whether the page was refreshed. Any error falls
// back to a full parse and write.
func (s *Spider) refreshUnchanged(ctx context.Context, logger *slog.Logger, path, pageURL, hash string) ([]string, bool) {
	cd, ok := s.store.(ChangeDetector)
	if !ok || cd.Policy() != database.PolicyReplace || ctx.Err() != nil {
		return nil, false
	}

	stored, found, err := cd.PageHash(ctx, path)
	if err != nil {
		logger.Debug("stored hash unavailable", slog.String("error", err.Error()))
		return nil, false
	}
	if !found || stored != hash {
		return nil, false
	}

	links, err := cd.PageLinks(ctx, path)
	if err != nil {
		logger.Debug("stored links unavailable", slog.String("error", err.Error()))
		return nil, false
	}
	refreshed, err := cd.RefreshPage(ctx, path, pageURL, hash, time.Now().UTC())
	if err != nil || !refreshed {
		return nil, false
	}
	logger.Debug("page unchanged", slog.String("path", path))
	return links, true
}

func (s *Spider) recordFetchError(ctx context.Context, logger *slog.Logger, item crawlItem, status int, msg string) {
	fe := &model.FetchError{
		URL:        item.url.String(),
		StatusCode: status,
		Referrer:   item.referrer,
		Message:    msg,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.store.InsertFetchError(ctx, fe); err != nil && ctx.Err() == nil {
		logger.Warn("failed to record fetch error", slog.String("error", err.Error()))
	}
}
