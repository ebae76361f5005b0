package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
)

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestRobotsEnforcerCachesFailedFetch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	})}
	robots := NewRobotsEnforcer(client, DefaultUserAgent, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, raw := range []string{"https://example.com/a/", "https://example.com/b/", "https://EXAMPLE.com/c/"} {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		if !robots.Allowed(context.Background(), u) {
			t.Errorf("Allowed(%s) = false, want true", raw)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("robots.txt requested %d times, want 1", n)
	}
}
