package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateURL performs comprehensive URL validation
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: must be http or https, got %s", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("invalid URL: missing host")
	}

	return nil
}

// HasHTTPScheme reports whether the entry already starts with http:// or
// https:// (case-insensitive).
func HasHTTPScheme(entry string) bool {
	lower := strings.ToLower(entry)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// NormalizeSiteList prepares a raw site list for crawling. Blank entries and
// #-comment lines are removed, duplicates collapse onto their first position,
// and entries without an http(s) scheme are prefixed with http:// when
// assumeHTTP is set, or dropped otherwise. Returns the kept list in
// first-seen order and the dropped entries.
func NormalizeSiteList(entries []string, assumeHTTP bool) (kept []string, dropped []string) {
	seen := make(map[string]bool)
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}

		if !HasHTTPScheme(entry) {
			if !assumeHTTP {
				dropped = append(dropped, entry)
				continue
			}
			entry = "http://" + entry
		}

		if seen[entry] {
			continue
		}
		seen[entry] = true
		kept = append(kept, entry)
	}
	return kept, dropped
}
