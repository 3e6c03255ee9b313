// internal/cmp/collect.go
package cmp

import (
	"github.com/rs/zerolog"

	"github.com/consent-audit/crawl/pkg/models"
)

// Collect merges a record into the session's set and logs any field
// conflict the merge surfaced. Duplicate identities are expected (the
// same cookie often appears under several categories); disagreeing
// purpose or type values are diagnostic, never fatal.
func Collect(logger zerolog.Logger, session *models.CrawlSession, rec models.CookieRecord) {
	conflicts := session.Records.Add(rec)
	for _, c := range conflicts {
		logger.Warn().
			Str("cookie", rec.Name).
			Str("domain", rec.Domain).
			Str("field", c.Field).
			Str("kept", c.Kept).
			Str("dropped", c.Dropped).
			Msg("Duplicate cookie entry disagrees on a field, keeping first value")
	}
}
