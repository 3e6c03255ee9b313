package models

// CookieCategory is the canonical consent category every CMP-specific
// category name resolves to.
type CookieCategory int

const (
	// CategoryUnknown marks a category name no heuristic recognized.
	CategoryUnknown CookieCategory = -1

	// CategoryEssential cookies are necessary for the site to function.
	CategoryEssential CookieCategory = 0
	// CategoryFunctional covers functionality and preference cookies.
	CategoryFunctional CookieCategory = 1
	// CategoryAnalytical covers performance and statistics cookies.
	CategoryAnalytical CookieCategory = 2
	// CategoryAdvertising covers advertising, tracking, social media and
	// personal-data-sale cookies.
	CategoryAdvertising CookieCategory = 3
	// CategoryUnclassified marks cookies the CMP explicitly left unclassified.
	CategoryUnclassified CookieCategory = 4
)

func (c CookieCategory) String() string {
	switch c {
	case CategoryEssential:
		return "ESSENTIAL"
	case CategoryFunctional:
		return "FUNCTIONAL"
	case CategoryAnalytical:
		return "ANALYTICAL"
	case CategoryAdvertising:
		return "ADVERTISING"
	case CategoryUnclassified:
		return "UNCLASSIFIED"
	default:
		return "UNKNOWN"
	}
}
