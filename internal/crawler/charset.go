package crawler

import (
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// fallbackEncoding is the name DetermineEncoding reports when nothing in
// the document names an encoding.
const fallbackEncoding = "windows-1252"

// DecodeBody converts body to UTF-8 using the charset named in contentType,
// a byte-order mark or a <meta> declaration.
//
// Without any of those, a body that is valid UTF-8 is returned unchanged:
// the windows-1252 fallback only applies to bytes that cannot be UTF-8.
// Bodies that fail to decode are returned unchanged.
func DecodeBody(contentType string, body []byte) []byte {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if enc == nil || name == "utf-8" {
		return body
	}
	if !certain && name == fallbackEncoding && utf8.Valid(body) {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}
