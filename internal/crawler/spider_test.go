package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/siteindex/internal/database"
	"github.com/nao1215/siteindex/internal/fingerprint"
	"github.com/nao1215/siteindex/internal/model"
)

// memStore is an in-memory PageStore with insert-only semantics.
type memStore struct {
	mu        sync.Mutex
	pages     map[string]*model.PageRecord
	errors    []model.FetchError
	redirects []model.Redirect

	// failWith is returned once failAfter pages are stored.
	failWith  error
	failAfter int
}

func newMemStore() *memStore {
	return &memStore{pages: make(map[string]*model.PageRecord)}
}

func (m *memStore) InsertPage(_ context.Context, rec *model.PageRecord) (database.InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWith != nil && len(m.pages) >= m.failAfter {
		return database.InsertResult{}, m.failWith
	}
	if _, ok := m.pages[rec.Path]; ok {
		return database.InsertResult{}, database.ErrDuplicatePage
	}
	m.pages[rec.Path] = rec
	return database.InsertResult{RowID: int64(len(m.pages))}, nil
}

func (m *memStore) InsertFetchError(_ context.Context, fe *model.FetchError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, *fe)
	return nil
}

func (m *memStore) InsertRedirect(_ context.Context, r *model.Redirect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirects = append(m.redirects, *r)
	return nil
}

func (m *memStore) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pages))
	for p := range m.pages {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// replaceStore is a memStore that also acts as a ChangeDetector for a
// replace policy, with stored hashes and links set by the test.
type replaceStore struct {
	*memStore
	hashes    map[string]string
	links     map[string][]string
	refreshed []string
}

func (r *replaceStore) Policy() database.DuplicatePolicy { return database.PolicyReplace }

func (r *replaceStore) PageHash(_ context.Context, path string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hashes[path]
	return h, ok, nil
}

func (r *replaceStore) PageLinks(_ context.Context, path string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.links[path], nil
}

func (r *replaceStore) RefreshPage(_ context.Context, path, _, hash string, _ time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hashes[path] != hash {
		return false, nil
	}
	r.refreshed = append(r.refreshed, path)
	return true, nil
}

// htmlHandler serves body as text/html.
func htmlHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body)) //nolint:errcheck
	}
}

func openStore(t *testing.T, path string, policy database.DuplicatePolicy) *database.DB {
	t.Helper()

	opts := database.DefaultOptions()
	opts.DuplicatePolicy = policy
	db, err := database.Open(path, opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSpiderStoresAboutPage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/about/", htmlHandler(`<html><head><title>About</title></head><body>
		<div class="o-hero m-list"><a href="/team/">Team</a><a href="/contact/">Contact</a></div>
	</body></html>`))
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	db := openStore(t, filepath.Join(t.TempDir(), "crawl.sqlite3"), database.PolicyInsertOnly)

	spider := NewSpider(server.Client(), db)
	stats, err := spider.Crawl(ctx, server.URL+"/about/")
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	page, err := db.GetPage(ctx, "/about/")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if page == nil {
		t.Fatal("page /about/ was not stored")
	}
	if page.Title != "About" {
		t.Errorf("title = %q, want About", page.Title)
	}
	if want := []string{"/team/", "/contact/"}; !slices.Equal(page.Links, want) {
		t.Errorf("links = %v, want %v", page.Links, want)
	}
	if want := []string{"o-hero", "m-list"}; !slices.Equal(page.Components, want) {
		t.Errorf("components = %v, want %v", page.Components, want)
	}
	if len(page.ContentHash) != 32 {
		t.Errorf("content hash = %q, want 32 hex chars", page.ContentHash)
	}
	if len(page.PageID) != 10 {
		t.Errorf("page id = %q, want 10 chars", page.PageID)
	}

	// /team/ and /contact/ are 404 on this server.
	if stats.Accepted != 1 || stats.Failed != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	fetchErrors, err := db.FetchErrors(ctx)
	if err != nil {
		t.Fatalf("FetchErrors: %v", err)
	}
	if len(fetchErrors) != 2 {
		t.Fatalf("fetch errors = %+v, want 2", fetchErrors)
	}
	if fetchErrors[0].StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", fetchErrors[0].StatusCode)
	}
	if fetchErrors[0].Referrer != server.URL+"/about/" {
		t.Errorf("referrer = %q", fetchErrors[0].Referrer)
	}
}

func TestSpiderSkipsExternalSite(t *testing.T) {
	t.Parallel()

	var externalHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler(`<html><body><a href="/external-site/redirect">out</a></body></html>`))
	mux.HandleFunc("/external-site/", func(w http.ResponseWriter, r *http.Request) {
		externalHits.Add(1)
		htmlHandler("<html></html>")(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newMemStore()
	stats, err := NewSpider(server.Client(), store).Crawl(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if stats.Fetched != 1 || stats.FilteredOut != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if externalHits.Load() != 0 {
		t.Errorf("external-site was fetched %d times", externalHits.Load())
	}
	if got := store.paths(); !slices.Equal(got, []string{"/"}) {
		t.Errorf("stored paths = %v, want [/]", got)
	}
}

func TestSpiderDuplicatePolicy(t *testing.T) {
	t.Parallel()

	newServer := func() *httptest.Server {
		return httptest.NewServer(htmlHandler(`<html><head><title>Same</title></head><body>unchanged</body></html>`))
	}

	t.Run("insert-only reports a duplicate", func(t *testing.T) {
		t.Parallel()

		server := newServer()
		defer server.Close()

		ctx := context.Background()
		db := openStore(t, filepath.Join(t.TempDir(), "crawl.sqlite3"), database.PolicyInsertOnly)
		spider := NewSpider(server.Client(), db)

		if _, err := spider.Crawl(ctx, server.URL); err != nil {
			t.Fatalf("first crawl: %v", err)
		}
		stats, err := spider.Crawl(ctx, server.URL)
		if err != nil {
			t.Fatalf("second crawl: %v", err)
		}

		if stats.Duplicates != 1 || stats.Accepted != 0 {
			t.Errorf("second crawl stats %+v, want one duplicate", stats)
		}
		if n, _ := db.Count(ctx); n != 1 {
			t.Errorf("stored rows = %d, want 1", n)
		}
	})

	t.Run("replace refreshes crawled_at", func(t *testing.T) {
		t.Parallel()

		server := newServer()
		defer server.Close()

		ctx := context.Background()
		db := openStore(t, filepath.Join(t.TempDir(), "crawl.sqlite3"), database.PolicyReplace)
		spider := NewSpider(server.Client(), db)

		if _, err := spider.Crawl(ctx, server.URL); err != nil {
			t.Fatalf("first crawl: %v", err)
		}
		first, err := db.GetPage(ctx, "/")
		if err != nil || first == nil {
			t.Fatalf("GetPage after first crawl: %v, %v", first, err)
		}

		time.Sleep(5 * time.Millisecond)
		stats, err := spider.Crawl(ctx, server.URL)
		if err != nil {
			t.Fatalf("second crawl: %v", err)
		}
		second, err := db.GetPage(ctx, "/")
		if err != nil || second == nil {
			t.Fatalf("GetPage after second crawl: %v, %v", second, err)
		}

		if n, _ := db.Count(ctx); n != 1 {
			t.Errorf("stored rows = %d, want 1", n)
		}
		if !second.CrawledAt.After(first.CrawledAt) {
			t.Errorf("crawled_at not refreshed: %v then %v", first.CrawledAt, second.CrawledAt)
		}
		if stats.Unchanged != 1 {
			t.Errorf("second crawl stats %+v, want one unchanged page", stats)
		}
	})
}

func TestSpiderConcurrencyBound(t *testing.T) {
	t.Parallel()

	const (
		pages = 30
		limit = 3
	)

	var (
		current atomic.Int32
		peak    atomic.Int32
	)
	var links strings.Builder
	for i := range pages {
		fmt.Fprintf(&links, `<a href="/p/%d/">%d</a>`, i, i)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler("<html><body>"+links.String()+"</body></html>"))
	mux.HandleFunc("/p/", func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		defer current.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		htmlHandler("<html><body>leaf</body></html>")(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newMemStore()
	stats, err := NewSpider(server.Client(), store, WithMaxConcurrency(limit)).Crawl(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	if got := peak.Load(); got > limit {
		t.Errorf("peak concurrent fetches = %d, want <= %d", got, limit)
	}
	if stats.Accepted != pages+1 {
		t.Errorf("accepted = %d, want %d", stats.Accepted, pages+1)
	}
	if len(store.paths()) != pages+1 {
		t.Errorf("stored %d pages, want %d", len(store.paths()), pages+1)
	}
}

func TestSpiderVisitsEachURLOnce(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	hits := make(map[string]int)
	count := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			hits[r.URL.Path]++
			mu.Unlock()
			next(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", count(htmlHandler(`<html><body>
		<a href="/a/">a</a><a href="/a/#frag">a again</a><a href="/old/">old</a><a href="/new/">new</a>
	</body></html>`)))
	mux.HandleFunc("/a/", count(htmlHandler(`<html><body><a href="/">home</a><a href="/new/">new</a></body></html>`)))
	mux.HandleFunc("/old/", count(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusMovedPermanently)
	}))
	mux.HandleFunc("/new/", count(htmlHandler(`<html><body>new</body></html>`)))
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newMemStore()
	if _, err := NewSpider(server.Client(), store, WithMaxConcurrency(1)).Crawl(context.Background(), server.URL); err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for path, n := range hits {
		if n != 1 {
			t.Errorf("%s fetched %d times, want 1", path, n)
		}
	}
	if len(store.redirects) != 1 {
		t.Fatalf("redirects = %+v, want one hop", store.redirects)
	}
	r := store.redirects[0]
	if r.StatusCode != http.StatusMovedPermanently || !strings.HasSuffix(r.URL, "/old/") || !strings.HasSuffix(r.Location, "/new/") {
		t.Errorf("unexpected redirect %+v", r)
	}
}

func TestSpiderRejectsNonHTML(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler(`<html><body><a href="/feed">feed</a></body></html>`))
	mux.HandleFunc("/feed", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("not html")) //nolint:errcheck
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newMemStore()
	stats, err := NewSpider(server.Client(), store).Crawl(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if stats.Rejected != 1 || stats.Accepted != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if got := store.paths(); !slices.Equal(got, []string{"/"}) {
		t.Errorf("stored paths = %v", got)
	}
}

func TestSpiderRespectsRobots(t *testing.T) {
	t.Parallel()

	var privateHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n")) //nolint:errcheck
	})
	mux.HandleFunc("/", htmlHandler(`<html><body><a href="/private/x">p</a><a href="/public/">q</a></body></html>`))
	mux.HandleFunc("/private/", func(w http.ResponseWriter, r *http.Request) {
		privateHits.Add(1)
		htmlHandler("<html></html>")(w, r)
	})
	mux.HandleFunc("/public/", htmlHandler("<html></html>"))
	server := httptest.NewServer(mux)
	defer server.Close()

	t.Run("disallowed paths are filtered when enabled", func(t *testing.T) {
		store := newMemStore()
		stats, err := NewSpider(server.Client(), store, WithRespectRobots(true)).Crawl(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Crawl: %v", err)
		}
		if privateHits.Load() != 0 {
			t.Errorf("private page fetched %d times", privateHits.Load())
		}
		if stats.FilteredOut != 1 || stats.Accepted != 2 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("robots are ignored by default", func(t *testing.T) {
		store := newMemStore()
		if _, err := NewSpider(server.Client(), store).Crawl(context.Background(), server.URL); err != nil {
			t.Fatalf("Crawl: %v", err)
		}
		if privateHits.Load() != 1 {
			t.Errorf("private page fetched %d times, want 1", privateHits.Load())
		}
	})
}

func TestSpiderMaxPages(t *testing.T) {
	t.Parallel()

	var links strings.Builder
	for i := range 10 {
		fmt.Fprintf(&links, `<a href="/p/%d/">%d</a>`, i, i)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler("<html><body>"+links.String()+"</body></html>"))
	mux.HandleFunc("/p/", htmlHandler("<html><body>leaf</body></html>"))
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newMemStore()
	stats, err := NewSpider(server.Client(), store, WithMaxPages(4)).Crawl(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if stats.Fetched != 4 || len(store.paths()) != 4 {
		t.Errorf("fetched %d, stored %d; want 4 each", stats.Fetched, len(store.paths()))
	}
}

func TestSpiderAbortsOnStorageFailures(t *testing.T) {
	t.Parallel()

	var links strings.Builder
	for i := range 20 {
		fmt.Fprintf(&links, `<a href="/p/%d/">%d</a>`, i, i)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler("<html><body>"+links.String()+"</body></html>"))
	mux.HandleFunc("/p/", htmlHandler("<html><body>leaf</body></html>"))
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newMemStore()
	// The start page stores fine, every later write fails.
	store.failWith = fmt.Errorf("%w: disk full", database.ErrStorage)
	store.failAfter = 1

	stats, err := NewSpider(server.Client(), store, WithMaxStorageFailures(3), WithMaxConcurrency(1)).
		Crawl(context.Background(), server.URL)
	if !errors.Is(err, ErrTooManyStorageFailures) {
		t.Fatalf("expected ErrTooManyStorageFailures, got %v", err)
	}
	if !errors.Is(err, database.ErrStorage) {
		t.Errorf("expected the storage error to be wrapped, got %v", err)
	}
	if stats.StorageFailures < 3 {
		t.Errorf("storage failures = %d, want >= 3", stats.StorageFailures)
	}
	if stats.Fetched >= 21 {
		t.Errorf("crawl did not stop early: %+v", stats)
	}
}

func TestSpiderCancelled(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(htmlHandler("<html></html>"))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newMemStore()
	_, err := NewSpider(server.Client(), store).Crawl(ctx, server.URL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(store.paths()) != 0 {
		t.Errorf("pages stored after cancellation: %v", store.paths())
	}
}

func TestSpiderInvalidStartURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"ftp://example.com/", "example.com", "://bad", "https://"} {
		_, err := NewSpider(http.DefaultClient, newMemStore()).Crawl(context.Background(), raw)
		if !errors.Is(err, ErrInvalidStartURL) {
			t.Errorf("Crawl(%q) error = %v, want ErrInvalidStartURL", raw, err)
		}
	}
}

func TestSpiderReportsProgress(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler(`<html><body><a href="/a/">a</a></body></html>`))
	mux.HandleFunc("/a/", htmlHandler(`<html><body>a</body></html>`))
	server := httptest.NewServer(mux)
	defer server.Close()

	obs := &recordingObserver{}
	if _, err := NewSpider(server.Client(), newMemStore(), WithProgress(obs, 100)).Crawl(context.Background(), server.URL); err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.total != 100 || !obs.finished {
		t.Errorf("start/finish not reported: %+v", obs)
	}
	slices.Sort(obs.paths)
	if want := []string{"/", "/a/"}; !slices.Equal(obs.paths, want) {
		t.Errorf("accepted paths = %v, want %v", obs.paths, want)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	total    int
	paths    []string
	finished bool
}

func (r *recordingObserver) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
}

func (r *recordingObserver) Accepted(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recordingObserver) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = true
}

func TestSpiderKeepsUndeclaredUTF8(t *testing.T) {
	t.Parallel()

	body := "<html><head><title>Menu</title></head><body>" +
		strings.Repeat("<p>filler text</p>", 80) + "<p>Café niño</p></body></html>"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body)) //nolint:errcheck
	}))
	defer server.Close()

	ctx := context.Background()
	db := openStore(t, filepath.Join(t.TempDir(), "crawl.sqlite3"), database.PolicyInsertOnly)
	if _, err := NewSpider(server.Client(), db).Crawl(ctx, server.URL); err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	page, err := db.GetPage(ctx, "/")
	if err != nil || page == nil {
		t.Fatalf("GetPage: %v, %v", page, err)
	}
	if !strings.HasSuffix(page.Text, "Café niño") {
		t.Errorf("text tail = %q, want Café niño", page.Text[max(0, len(page.Text)-20):])
	}
	if page.HTML != body {
		t.Error("stored HTML differs from the served body")
	}
	if want := fingerprint.Fingerprint([]byte(body)); page.ContentHash != want {
		t.Errorf("content hash = %s, want %s", page.ContentHash, want)
	}
}

func TestSpiderHashesRawBytes(t *testing.T) {
	t.Parallel()

	// "café" in windows-1252: decoded before parsing, hashed as served.
	raw := []byte("<html><head><title>caf\xe9</title></head><body>x</body></html>")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		_, _ = w.Write(raw) //nolint:errcheck
	}))
	defer server.Close()

	store := newMemStore()
	if _, err := NewSpider(server.Client(), store).Crawl(context.Background(), server.URL); err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	rec := store.pages["/"]
	if rec == nil {
		t.Fatal("page / was not stored")
	}
	if rec.Title != "café" {
		t.Errorf("title = %q, want café", rec.Title)
	}
	if want := fingerprint.Fingerprint(raw); rec.ContentHash != want {
		t.Errorf("content hash = %s, want %s", rec.ContentHash, want)
	}
}

func TestSpiderMaxDepth(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler(`<html><body><a href="/1/">1</a></body></html>`))
	mux.HandleFunc("/1/", htmlHandler(`<html><body><a href="/2/">2</a></body></html>`))
	mux.HandleFunc("/2/", htmlHandler(`<html><body><a href="/3/">3</a></body></html>`))
	mux.HandleFunc("/3/", htmlHandler(`<html><body>leaf</body></html>`))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	tests := []struct {
		name  string
		depth int
		want  []string
	}{
		{name: "unlimited", depth: 0, want: []string{"/", "/1/", "/2/", "/3/"}},
		{name: "two links deep", depth: 2, want: []string{"/", "/1/", "/2/"}},
		{name: "one link deep", depth: 1, want: []string{"/", "/1/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newMemStore()
			stats, err := NewSpider(server.Client(), store, WithMaxDepth(tt.depth)).Crawl(context.Background(), server.URL)
			if err != nil {
				t.Fatalf("Crawl: %v", err)
			}
			if got := store.paths(); !slices.Equal(got, tt.want) {
				t.Errorf("stored %v, want %v", got, tt.want)
			}
			if stats.Fetched != len(tt.want) {
				t.Errorf("fetched %d, want %d", stats.Fetched, len(tt.want))
			}
		})
	}
}

func TestSpiderSkipsUnchangedPages(t *testing.T) {
	t.Parallel()

	home := `<html><body><a href="/served-link/">served</a></body></html>`
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler(home))
	mux.HandleFunc("/stored-link/", htmlHandler(`<html><body>stored</body></html>`))
	server := httptest.NewServer(mux)
	defer server.Close()

	store := &replaceStore{
		memStore: newMemStore(),
		hashes:   map[string]string{"/": fingerprint.Fingerprint([]byte(home))},
		links:    map[string][]string{"/": {"/stored-link/"}},
	}

	stats, err := NewSpider(server.Client(), store).Crawl(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}

	// The unchanged home page is refreshed, not parsed: its links come
	// from the store.
	if want := []string{"/stored-link/"}; !slices.Equal(store.paths(), want) {
		t.Errorf("inserted %v, want %v", store.paths(), want)
	}
	if want := []string{"/"}; !slices.Equal(store.refreshed, want) {
		t.Errorf("refreshed %v, want %v", store.refreshed, want)
	}
	if stats.Accepted != 2 || stats.Unchanged != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestSpiderDoesNotReportDuplicates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(htmlHandler(`<html><body>same</body></html>`))
	defer server.Close()

	store := newMemStore()
	ctx := context.Background()
	if _, err := NewSpider(server.Client(), store).Crawl(ctx, server.URL); err != nil {
		t.Fatalf("first crawl: %v", err)
	}

	obs := &recordingObserver{}
	stats, err := NewSpider(server.Client(), store, WithProgress(obs, 10)).Crawl(ctx, server.URL)
	if err != nil {
		t.Fatalf("second crawl: %v", err)
	}
	if stats.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", stats.Duplicates)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.paths) != 0 {
		t.Errorf("duplicates reported as accepted: %v", obs.paths)
	}
}
