// Package cmp defines the contract every consent-platform extractor
// implements, plus the constants shared between them.
package cmp

import (
	"context"
	"regexp"
	"time"

	"github.com/consent-audit/crawl/internal/debugdump"
	"github.com/consent-audit/crawl/internal/fetch"
	"github.com/consent-audit/crawl/internal/page"
	"github.com/consent-audit/crawl/pkg/models"
)

// Provider names a supported consent management platform.
type Provider string

const (
	ProviderCookiebot Provider = "cookiebot"
	ProviderOneTrust  Provider = "onetrust"
	ProviderTermly    Provider = "termly"
)

// Providers lists the supported platforms in detection order.
func Providers() []Provider {
	return []Provider{ProviderCookiebot, ProviderOneTrust, ProviderTermly}
}

// uuidSource matches the consent-library identifiers all three platforms
// issue to their customers.
const uuidSource = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

// UUIDPattern finds an embedded identifier inside a larger string.
var UUIDPattern = regexp.MustCompile(uuidSource)

var uuidExact = regexp.MustCompile(`^` + uuidSource + `$`)

// IsUUID reports whether s is exactly one consent-library identifier.
func IsUUID(s string) bool {
	return uuidExact.MatchString(s)
}

// Getter is the HTTP collaborator extractors fetch consent endpoints
// through. *fetch.Client is the production implementation.
type Getter interface {
	Get(ctx context.Context, url string, opts fetch.Options) *fetch.Result
}

// PageSession is the rendered-page collaborator. *page.Session is the
// production implementation; tests substitute a canned DOM.
type PageSession interface {
	Navigate(ctx context.Context, url string) *page.NavigateResult
	Markup(ctx context.Context) (string, error)
	Scripts(ctx context.Context) ([]page.Script, error)
	WaitScript(ctx context.Context, wait time.Duration, match func(page.Script) bool) (page.Script, bool)
	Close()
}

// Deps bundles the collaborators an extractor borrows for one site. The
// page session and HTTP client are owned by the calling worker; the
// extractor must not retain them past the Scrape call.
type Deps struct {
	Fetch Getter
	Page  PageSession
	Debug debugdump.Sink

	// Wait overrides the per-step script-tag wait when positive.
	Wait time.Duration
}

// WaitOr returns the configured script wait, or def when none was set.
func (d Deps) WaitOr(def time.Duration) time.Duration {
	if d.Wait > 0 {
		return d.Wait
	}
	return def
}

// Extractor pulls the cookie catalog for one consent platform out of a
// live site. Scrape always returns a finalized session: failures are
// encoded in the session outcome, never panicked or returned as errors.
type Extractor interface {
	Provider() Provider
	Scrape(ctx context.Context, site string, deps Deps) *models.CrawlSession
}
