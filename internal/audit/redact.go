package audit

import (
	"net/url"
	"strings"
)

// globalRedactPatterns are parameter name substrings that always trigger
// redaction.
var globalRedactPatterns = []string{
	"token",
	"key",
	"secret",
	"password",
	"authorization",
	"cookie",
	"credential",
	"signature",
}

const redactedValue = "REDACTED"

// RedactURL replaces the values of sensitive query parameters and drops
// userinfo. Parameter order is kept. Unparseable input is returned as-is.
func RedactURL(raw string, hints []string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	changed := false
	if u.User != nil {
		u.User = nil
		changed = true
	}
	if u.RawQuery != "" {
		parts := strings.Split(u.RawQuery, "&")
		for i, part := range parts {
			name, _, hasValue := strings.Cut(part, "=")
			decoded, err := url.QueryUnescape(name)
			if err != nil {
				decoded = name
			}
			if hasValue && shouldRedact(decoded, hints) {
				parts[i] = name + "=" + redactedValue
				changed = true
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}
	if !changed {
		return raw
	}
	return u.String()
}

// shouldRedact checks if a name matches any global pattern or hint.
func shouldRedact(name string, hints []string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range globalRedactPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	for _, hint := range hints {
		if hint != "" && strings.Contains(lower, strings.ToLower(hint)) {
			return true
		}
	}
	return false
}
