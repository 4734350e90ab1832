// Package endpoint normalizes and validates user-supplied backend URLs.
// Tunnel URLs are usually pasted out of a notebook cell, so the diagnoser
// prioritizes whitespace and stray-space mistakes over protocol errors.
package endpoint

import (
	"net/url"
	"strings"
)

// Issue describes a specific problem with a pasted endpoint URL.
type Issue string

const (
	IssueEmpty         Issue = "endpoint cannot be empty"
	IssueWhitespace    Issue = "endpoint contains leading/trailing whitespace"
	IssueSpaces        Issue = "endpoint contains spaces"
	IssueScheme        Issue = "endpoint must start with http:// or https://"
	IssueInvalid       Issue = "endpoint is not a valid URL"
	IssueEncodedSpaces Issue = "endpoint contains encoded spaces (%20)"
)

// Sanitize trims surrounding whitespace and strips trailing slashes.
// It is total and idempotent.
func Sanitize(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

// IsValid reports whether the sanitized form of raw parses as an absolute
// http or https URL. It never panics on malformed input.
func IsValid(raw string) bool {
	u, err := url.Parse(Sanitize(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// Diagnose checks the unsanitized input against common copy-paste mistakes
// and returns the first matching issue, or empty when all checks pass.
// Ordering is deliberate: whitespace problems are reported before
// protocol/format problems.
func Diagnose(raw string) Issue {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IssueEmpty
	}
	if raw != trimmed {
		return IssueWhitespace
	}
	if strings.Contains(raw, " ") {
		return IssueSpaces
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return IssueScheme
	}
	if u, err := url.Parse(raw); err != nil || u.Host == "" {
		return IssueInvalid
	}
	if strings.Contains(raw, "%20") {
		return IssueEncodedSpaces
	}
	return ""
}
