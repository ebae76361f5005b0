package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy decides whether robots.txt allows fetching a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, u *url.URL) bool
}

// maxRobotsSize caps the robots.txt body read.
const maxRobotsSize = 1 << 20

// RobotsEnforcer fetches robots.txt once per host and tests paths against
// the group matching its user agent.
type RobotsEnforcer struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	cache sync.Map // host -> *robotstxt.RobotsData
}

// NewRobotsEnforcer returns a RobotsEnforcer using client for robots.txt
// requests.
func NewRobotsEnforcer(client *http.Client, userAgent string, logger *slog.Logger) *RobotsEnforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsEnforcer{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

// allowAllRobots is cached for hosts whose robots.txt cannot be fetched.
var allowAllRobots, _ = robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)

// Allowed implements RobotsPolicy. A robots.txt that cannot be fetched
// allows everything.
func (r *RobotsEnforcer) Allowed(ctx context.Context, u *url.URL) bool {
	group := r.rules(ctx, u).FindGroup(r.userAgent)
	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// rules returns the robots.txt of u's host, fetching it on first use.
// A failed fetch is logged once and cached as allow-all, so the host is
// not asked again during the crawl. Cancellation is not cached.
func (r *RobotsEnforcer) rules(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := strings.ToLower(u.Host)
	if cached, ok := r.cache.Load(host); ok {
		if data, ok := cached.(*robotstxt.RobotsData); ok {
			return data
		}
	}

	data, err := r.fetch(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return allowAllRobots
		}
		r.logger.Warn("robots.txt unavailable, allowing access",
			slog.String("host", u.Host),
			slog.String("error", err.Error()))
		data = allowAllRobots
	}
	actual, _ := r.cache.LoadOrStore(host, data)
	if stored, ok := actual.(*robotstxt.RobotsData); ok {
		return stored
	}
	return data
}

func (r *RobotsEnforcer) fetch(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}
