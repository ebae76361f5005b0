package crawler

import (
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

// MinifyResult carries the HTML to store. HTML is always usable: when
// minification fails it holds the original markup, Minified is false and
// Err records the cause.
type MinifyResult struct {
	HTML     string
	Minified bool
	Err      error
}

// minifier is shared by all parsers; minify.M is safe for concurrent use.
var minifier = newMinifier()

func newMinifier() *minify.M {
	m := minify.New()
	// Quotes and end tags are kept so that stored markup still matches
	// class="..." scans and stays readable in search snippets.
	m.Add("text/html", &mhtml.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)
	m.AddFuncRegexp(regexp.MustCompile(`^(application|text)/(x-)?(java|ecma)script$`), js.Minify)
	return m
}

// Minify shrinks an HTML document. It never fails: see MinifyResult.
func Minify(html string) MinifyResult {
	out, err := minifier.String("text/html", html)
	if err != nil {
		return MinifyResult{HTML: html, Err: err}
	}
	return MinifyResult{HTML: out, Minified: true}
}
