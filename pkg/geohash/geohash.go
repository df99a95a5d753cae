// Package geohash treats location hashes as opaque strings. The only two
// things the core ever does with one: check it is well formed, and compare two
// by prefix to decide whether they fall in the same service region.
package geohash

import "regexp"

// Geohash alphabet is base32 without a, i, l, o. Up to 12 characters of
// precision.
var validHash = regexp.MustCompile(`^[0123456789bcdefghjkmnpqrstuvwxyz]{1,12}$`)

// Valid reports whether s is a well-formed geohash.
func Valid(s string) bool {
	return validHash.MatchString(s)
}

// RegionsMatch reports whether two geohashes denote overlapping service
// regions: one must be a prefix of the other up to the shorter length. A
// coarser (shorter) hash intentionally widens the match. Malformed or empty
// hashes never match.
func RegionsMatch(a, b string) bool {
	if !Valid(a) || !Valid(b) {
		return false
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	return b[:len(a)] == a
}
