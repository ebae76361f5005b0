package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nao1215/siteindex/internal/model"
)

// redirectTrace collects the redirect hops of one request.
// It travels in the request context to the client's CheckRedirect hook.
type redirectTrace struct {
	referrer string
	hops     []model.Redirect
}

type traceKey struct{}

// fetchResponse is the part of an HTTP response the spider keeps.
type fetchResponse struct {
	statusCode  int
	contentType string
	final       *url.URL
	body        []byte
	hops        []model.Redirect
}

// crawlClient returns a copy of the spider's client whose redirect policy
// records every hop, stays on the crawled host and never follows a
// redirect to a URL already seen in this session.
func (s *Spider) crawlClient(sess *session, filter *Filter) *http.Client {
	c := *s.client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if tr, ok := req.Context().Value(traceKey{}).(*redirectTrace); ok && req.Response != nil {
			tr.hops = append(tr.hops, model.Redirect{
				URL:        via[len(via)-1].URL.String(),
				StatusCode: req.Response.StatusCode,
				Location:   req.URL.String(),
				Referrer:   tr.referrer,
				Timestamp:  time.Now().UTC(),
			})
		}
		if len(via) >= s.maxRedirects {
			return fmt.Errorf("%w: stopped after %d", errTooManyRedirects, len(via))
		}
		if ok, _ := filter.Allow(req.Context(), req.URL); !ok {
			return http.ErrUseLastResponse
		}
		if !sess.claim(req.URL) {
			return http.ErrUseLastResponse
		}
		return nil
	}
	return &c
}

// fetch requests item and reads its body up to the configured limit.
// The returned response is never nil so redirect hops survive errors.
func (s *Spider) fetch(ctx context.Context, client *http.Client, item crawlItem) (*fetchResponse, error) {
	trace := &redirectTrace{referrer: item.referrer}
	out := &fetchResponse{final: item.url}

	req, err := http.NewRequestWithContext(context.WithValue(ctx, traceKey{}, trace),
		http.MethodGet, item.url.String(), nil)
	if err != nil {
		return out, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	out.hops = trace.hops
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	out.statusCode = resp.StatusCode
	out.contentType = resp.Header.Get("Content-Type")
	if resp.Request != nil && resp.Request.URL != nil {
		out.final = resp.Request.URL
	}

	out.body, err = io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return out, fmt.Errorf("read body: %w", err)
	}
	return out, nil
}
