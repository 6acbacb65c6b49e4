// Package urlutil provides URL helpers for revocation endpoints.
package urlutil

import (
	"net/url"
	"strings"
)

// IsHTTP returns true if raw is a valid URL with the http or https scheme
func IsHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// FilterHTTP returns the http(s) entries of urls, preserving order
func FilterHTTP(urls []string) []string {
	var list []string
	for _, u := range urls {
		if IsHTTP(u) {
			list = append(list, u)
		}
	}
	return list
}

// JoinPath returns base joined with the supplied path segment
// using a single separator.
func JoinPath(base, segment string) string {
	return strings.TrimRight(base, "/") + "/" + segment
}
