package crawler

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/siteindex/internal/fingerprint"
)

// DefaultChromeSelectors identify the site header and footer. Their links
// appear on every page and are left out of a page's link list.
var DefaultChromeSelectors = []string{".o-header", ".o-footer"}

// textStripSelectors are removed, in addition to chrome, before collecting
// visible text.
var textStripSelectors = []string{".skip-nav", "img", "script", "style", "noscript", "template"}

// componentPattern finds design-system class tokens. A token starts after
// class=" or any whitespace, carries an o-, m- or a- prefix and stops at
// an underscore, a quote or whitespace, so o-hero__title yields o-hero.
//
// Design decision: components are found with a text scan of the raw
// markup rather than a DOM query. The scan is cheap and also catches tokens
// in attributes other than class, which is what the component inventory
// has always counted.
var componentPattern = regexp.MustCompile(`(?:class="|\s)((?:o|m|a)-[^_"\s]*)`)

// componentPrefixes are the accepted token prefixes.
var componentPrefixes = []string{"o-", "m-", "a-"}

// Parser extracts the stored signals from an HTML page.
// A Parser is immutable after construction and safe for concurrent use.
type Parser struct {
	chromeSelector string
	textSelector   string

	minify bool

	unwrapExternal   bool
	externalSitePath string
}

// ParseResult is everything Parse extracts from one page.
type ParseResult struct {
	// Title is the trimmed text of the first <title> element.
	Title string

	// Language is the lang attribute of <html>.
	Language string

	// Text is the visible body text with whitespace runs collapsed.
	Text string

	// Links are raw href values of anchors outside chrome, in document
	// order, duplicates included.
	Links []string

	// Components are the unique component tokens in first-seen order.
	Components []string

	// ContentHash is the fingerprint of the parsed bytes.
	ContentHash string

	// HTML is the markup to store.
	HTML string

	// Minified reports whether HTML was minified.
	Minified bool
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithChromeSelectors replaces the selectors whose subtrees are removed
// before link and text extraction.
func WithChromeSelectors(selectors []string) ParserOption {
	return func(p *Parser) {
		p.chromeSelector = joinSelectors(selectors)
	}
}

// WithMinify enables HTML minification of stored markup.
func WithMinify(enabled bool) ParserOption {
	return func(p *Parser) {
		p.minify = enabled
	}
}

// WithUnwrapExternalLinks replaces links of the form
// <sitePath>?ext_url=<target> with the decoded target. An empty sitePath
// keeps the default "/external-site/".
func WithUnwrapExternalLinks(enabled bool, sitePath string) ParserOption {
	return func(p *Parser) {
		p.unwrapExternal = enabled
		if sitePath != "" {
			p.externalSitePath = sitePath
		}
	}
}

// NewParser returns a Parser with the default chrome selectors, no
// minification and no link unwrapping.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		chromeSelector:   joinSelectors(DefaultChromeSelectors),
		externalSitePath: "/external-site/",
	}
	for _, opt := range opts {
		opt(p)
	}

	strip := textStripSelectors
	if p.chromeSelector != "" {
		strip = append([]string{p.chromeSelector}, strip...)
	}
	p.textSelector = joinSelectors(strip)
	return p
}

// Parse extracts title, language, text, links and components from body.
// It never fails: malformed markup is parsed leniently and missing
// elements yield empty values.
func (p *Parser) Parse(pageURL string, body []byte) *ParseResult {
	raw := string(body)
	result := &ParseResult{
		Links:       make([]string, 0),
		Components:  ExtractComponents(raw),
		ContentHash: fingerprint.Fingerprint(body),
	}

	if p.minify {
		m := Minify(raw)
		result.HTML = m.HTML
		result.Minified = m.Minified
	} else {
		result.HTML = raw
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return result
	}

	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	result.Language = strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))

	bodySel := doc.Find("body")
	if p.chromeSelector != "" {
		bodySel.Find(p.chromeSelector).Remove()
	}

	bodySel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if p.unwrapExternal {
			href = p.unwrapLink(pageURL, href)
		}
		result.Links = append(result.Links, href)
	})

	bodySel.Find(p.textSelector).Remove()
	result.Text = collapseWhitespace(norm.NFC.String(bodySel.Text()))

	return result
}

// unwrapLink returns the ext_url target of an external-site redirect link,
// or href unchanged.
func (p *Parser) unwrapLink(pageURL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base, err := url.Parse(pageURL); err == nil {
		u = base.ResolveReference(u)
	}
	if !strings.HasPrefix(u.Path, p.externalSitePath) {
		return href
	}
	if target := u.Query().Get("ext_url"); target != "" {
		return target
	}
	return href
}

// ExtractComponents returns the unique component tokens found in raw
// markup, in first-seen order.
func ExtractComponents(raw string) []string {
	components := make([]string, 0)
	seen := make(map[string]struct{})
	for _, m := range componentPattern.FindAllStringSubmatch(raw, -1) {
		token := m[1]
		if !hasComponentPrefix(token) {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		components = append(components, token)
	}
	return components
}

func hasComponentPrefix(token string) bool {
	for _, prefix := range componentPrefixes {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}
	return false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func joinSelectors(selectors []string) string {
	parts := make([]string, 0, len(selectors))
	for _, s := range selectors {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}
