// Package netutil provides shared host normalization helpers.
package netutil

import (
	"net"
	"strings"
)

// NormalizeHost lower-cases and strips ports/trailing dots from host values.
func NormalizeHost(raw string) string {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return ""
	}

	if h, p, err := net.SplitHostPort(host); err == nil && p != "" {
		host = h
	} else if strings.Count(host, ":") == 1 {
		left, right, ok := strings.Cut(host, ":")
		if ok && isDigits(right) {
			host = left
		}
	}

	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	return strings.TrimSuffix(host, ".")
}

// SplitSubdomain returns the subdomain portion of host relative to the base
// domain. ok is false when host is the base domain itself, empty, or not
// under the base domain at all; callers treat all three cases the same way.
func SplitSubdomain(host, baseDomain string) (sub string, ok bool) {
	if host == "" || baseDomain == "" || host == baseDomain {
		return "", false
	}
	sub, found := strings.CutSuffix(host, "."+baseDomain)
	if !found || sub == "" {
		return "", false
	}
	return sub, true
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
