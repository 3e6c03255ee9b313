// internal/cmp/onetrust/categories.go
package onetrust

import (
	"regexp"

	"github.com/rs/zerolog"

	"github.com/consent-audit/crawl/pkg/models"
)

// OneTrust customers name their categories freely, so resolution works by
// keyword search. English names only.
var (
	advertisePattern = regexp.MustCompile(`(?i)(^ads.*|.*\s+ads.*|Ad Selection|advertising|advertise|targeting` +
		`|sale of personal data|marketing|tracking|tracker|fingerprint)`)
	necessaryPattern  = regexp.MustCompile(`(?i)(necessary|essential|required)`)
	analyticalPattern = regexp.MustCompile(`(?i)(measurement|analytic|anonym|research|performance)`)
	functionalPattern = regexp.MustCompile(`(?i)(functional|preference|security|secure)`)
	uncatPattern      = regexp.MustCompile(`(?i)(uncategori[zs]e|unknown)`)
)

// resolveCategory maps a raw group name to a canonical category. The
// ordering is deliberate: advertising keywords win over everything else
// so names like "Analytics & Advertising" land in ADVERTISING, and
// necessary beats analytical for the same reason.
func resolveCategory(logger zerolog.Logger, name string) models.CookieCategory {
	switch {
	case advertisePattern.MatchString(name):
		return models.CategoryAdvertising
	case necessaryPattern.MatchString(name):
		return models.CategoryEssential
	case analyticalPattern.MatchString(name):
		return models.CategoryAnalytical
	case functionalPattern.MatchString(name):
		return models.CategoryFunctional
	case uncatPattern.MatchString(name):
		return models.CategoryUnclassified
	default:
		logger.Warn().Str("category", name).Msg("Unrecognized category name")
		return models.CategoryUnknown
	}
}
