// Package versionutil normalizes build version strings coming from
// -ldflags, git describe, and release tooling.
package versionutil

import "strings"

// EnsureVPrefix returns s with a leading "v" if it doesn't already have one.
func EnsureVPrefix(s string) string {
	if s != "" && !strings.HasPrefix(s, "v") {
		return "v" + s
	}
	return s
}

// IsDev reports whether a version string marks an unreleased build.
func IsDev(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "dev" || strings.HasSuffix(s, "-dev")
}

// Normalize canonicalizes a build version: dev builds pass through
// untouched, release versions gain the "v" prefix that release tooling
// tends to strip.
func Normalize(s string) string {
	if IsDev(s) {
		return s
	}
	return EnsureVPrefix(s)
}
