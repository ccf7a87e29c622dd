package util

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonSlugChars  = regexp.MustCompile(`[^a-z0-9-]`)
	nonAlnumChars = regexp.MustCompile(`[^a-z0-9]`)
)

// Normalize converts a title or slug into its canonical comparison key:
// trimmed, lower-cased, inner whitespace runs replaced by a single hyphen,
// and everything outside [a-z0-9-] removed. "Solo Leveling" becomes
// "solo-leveling". Surrounding whitespace never becomes a hyphen, so a
// padded title keys the same as a clean one.
func Normalize(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = whitespaceRun.ReplaceAllString(s, "-")
	return nonSlugChars.ReplaceAllString(s, "")
}

// StrictNormalize lower-cases and drops every non-alphanumeric character. It
// is only used for equality checks where punctuation may drift between sites.
func StrictNormalize(title string) string {
	return nonAlnumChars.ReplaceAllString(strings.ToLower(title), "")
}

// SlugIdentity returns the stable part of a slug: everything before the
// first '.', which separates a site-native id ("solo-leveling.12345").
func SlugIdentity(slug string) string {
	if i := strings.IndexByte(slug, '.'); i >= 0 {
		return slug[:i]
	}
	return slug
}

// IdentityKey is the slug-identity used for deduplication: the normalized
// slug prefix when a slug is known, the normalized title otherwise.
func IdentityKey(slug, title string) string {
	if key := Normalize(SlugIdentity(slug)); key != "" {
		return key
	}
	return Normalize(title)
}

// SameTitle reports whether two titles are equal after strict normalization.
// Two empty keys never match.
func SameTitle(a, b string) bool {
	ka := StrictNormalize(a)
	return ka != "" && ka == StrictNormalize(b)
}
