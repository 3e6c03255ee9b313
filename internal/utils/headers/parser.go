package headers

import (
	"fmt"
	"strings"
)

// ParseHeaders converts an array of header strings ("Key: Value") into a map
func ParseHeaders(h []string) map[string]string {
	m := make(map[string]string)
	for _, hdr := range h {
		parts := strings.SplitN(hdr, ":", 2)
		if len(parts) == 2 {
			m[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return m
}

// Validate checks that every header string is in "Key: Value" form with a
// non-empty key. Used by config validation so malformed --header flags fail
// before the crawl starts instead of being silently dropped.
func Validate(h []string) error {
	for _, hdr := range h {
		parts := strings.SplitN(hdr, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return fmt.Errorf("malformed header %q: expected \"Key: Value\"", hdr)
		}
	}
	return nil
}
