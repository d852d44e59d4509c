package webfetch

import (
	"net/url"
	"strings"
)

// NormalizeURL produces the canonical identity of a URL for deduplication
// and cache keys: fragment dropped, everything lowercased, trailing slashes
// trimmed. Two URLs differing only in case or a trailing slash normalize to
// the same string.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		u.Fragment = ""
		raw = u.String()
	}
	return strings.TrimRight(strings.ToLower(raw), "/")
}
