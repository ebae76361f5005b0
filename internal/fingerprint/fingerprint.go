// Package fingerprint derives stable identifiers and content hashes for
// crawled pages.
//
// Both functions use MD5. The digests are used for change detection and as
// short lookup keys, never for anything security related.
package fingerprint

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
)

// IDLength is the number of hex characters kept by DeriveID.
const IDLength = 10

// Fingerprint returns the lowercase hex MD5 digest of content.
// Identical input always yields the identical 32 character string.
func Fingerprint(content []byte) string {
	sum := md5.Sum(content) //nolint:gosec // see package doc
	return hex.EncodeToString(sum[:])
}

// DeriveID returns a short identifier for a URL: the first IDLength hex
// characters of the MD5 of the full URL string.
//
// Collisions are possible and are not detected. At the size of a single
// content site (tens of thousands of pages) the risk is negligible.
func DeriveID(rawURL string) string {
	return Fingerprint([]byte(rawURL))[:IDLength]
}
