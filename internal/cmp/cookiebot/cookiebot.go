// Package cookiebot extracts cookie category data from sites using the
// Cookiebot consent platform. Cookiebot publishes the whole catalog as
// nested JavaScript arrays inside a per-customer cc.js file; the crawl
// discovers the customer id (the "cbid") on the rendered page, fetches
// cc.js from the consent CDN and evaluates the five category tables.
package cookiebot

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/consent-audit/crawl/internal/cmp"
	"github.com/consent-audit/crawl/internal/fetch"
	"github.com/consent-audit/crawl/internal/jsliteral"
	"github.com/consent-audit/crawl/internal/page"
	"github.com/consent-audit/crawl/internal/reqctx"
	"github.com/consent-audit/crawl/pkg/models"
)

const consentCDN = "https://consent.cookiebot.com"

// cbidWait bounds the poll for the loader tag carrying the data-cbid
// attribute before the markup fallbacks run.
const cbidWait = 3 * time.Second

var (
	// The cbid is sometimes embedded in a script URL instead of the
	// data-cbid attribute. Two known shapes.
	ccURLPattern     = regexp.MustCompile(`https://consent\.cookiebot\.com/(` + cmp.UUIDPattern.String() + `)/cc\.js`)
	cbidParamPattern = regexp.MustCompile(`[&?]cbid=(` + cmp.UUIDPattern.String() + `)`)

	domainWarningPattern = regexp.MustCompile(`cookiedomainwarning='Error: .* is not a valid domain.`)
)

// bucket maps one of the five fixed declaration tables to its canonical
// category. Each table is a JavaScript array assignment with a prefix
// unique to the bucket.
type bucket struct {
	name     string
	category models.CookieCategory
	pattern  *regexp.Regexp
}

var buckets = []bucket{
	{"Necessary", models.CategoryEssential, regexp.MustCompile(`CookieConsentDialog\.cookieTableNecessary = (.*);`)},
	{"Preference", models.CategoryFunctional, regexp.MustCompile(`CookieConsentDialog\.cookieTablePreference = (.*);`)},
	{"Statistics", models.CategoryAnalytical, regexp.MustCompile(`CookieConsentDialog\.cookieTableStatistics = (.*);`)},
	{"Advertising", models.CategoryAdvertising, regexp.MustCompile(`CookieConsentDialog\.cookieTableAdvertising = (.*);`)},
	{"Unclassified", models.CategoryUnclassified, regexp.MustCompile(`CookieConsentDialog\.cookieTableUnclassified = (.*);`)},
}

// Extractor implements cmp.Extractor for Cookiebot.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Provider() cmp.Provider { return cmp.ProviderCookiebot }

// Scrape runs the full Cookiebot pipeline for one site.
func (e *Extractor) Scrape(ctx context.Context, site string, deps cmp.Deps) *models.CrawlSession {
	session := models.NewCrawlSession(site, string(cmp.ProviderCookiebot))
	logger := reqctx.Logger(ctx, log.Logger)

	// Probe first so unreachable sites fail fast without a browser tab.
	probe := deps.Fetch.Get(ctx, site, fetch.Options{})
	if !probe.OK() {
		return session.Finalize(probe.Outcome, probe.Diagnostic)
	}
	logger.Debug().Msg("Connection successful")

	nav := deps.Page.Navigate(ctx, site)
	if !nav.OK() {
		return session.Finalize(nav.Outcome, nav.Diagnostic)
	}

	cbid, outcome, diag := e.findCBID(ctx, deps, logger)
	if outcome != models.OutcomeSuccess {
		return session.Finalize(outcome, diag)
	}
	logger.Debug().Str("cbid", cbid).Msg("Cookiebot id found")

	referer := e.resolveReferer(ctx, deps.Page, cbid, site, logger)

	ccURL := fmt.Sprintf("%s/%s/cc.js?referer=%s", consentCDN, cbid, referer)
	res := deps.Fetch.Get(ctx, ccURL, fetch.Options{Headers: map[string]string{"Referer": site}})
	if !res.OK() {
		return session.Finalize(models.OutcomeLibraryError, res.Diagnostic)
	}

	body := string(res.Body)
	switch {
	case strings.Contains(body, "CookieConsent.setOutOfRegion"):
		return session.Finalize(models.OutcomeRegionBlock,
			fmt.Sprintf("received an out-of-region response from %q", ccURL))
	case domainWarningPattern.MatchString(body):
		return session.Finalize(models.OutcomeLibraryError,
			fmt.Sprintf("Cookiebot does not recognize referer %q with cbid %q as a valid domain", referer, cbid))
	case strings.TrimSpace(body) == "":
		return session.Finalize(models.OutcomeLibraryError,
			fmt.Sprintf("empty response when retrieving %q", ccURL))
	}
	logger.Debug().Str("url", ccURL).Int("bytes", len(body)).Msg("Retrieved consent declaration")

	count, err := e.parseDeclaration(body, site, session, logger)
	if err != nil {
		if deps.Debug.Enabled() {
			deps.Debug.Dump(fmt.Sprintf("debug_%s_cc.js", cbid), res.Body)
		}
		return session.Finalize(models.OutcomeMalformedResponse,
			fmt.Sprintf("failed to extract cookie data from %s: %v", ccURL, err))
	}
	if count == 0 {
		if deps.Debug.Enabled() {
			deps.Debug.Dump(fmt.Sprintf("debug_%s_cc.js", cbid), res.Body)
		}
		return session.Finalize(models.OutcomeNoCookies, fmt.Sprintf("no cookies found in %s", ccURL))
	}

	logger.Info().Int("cookies", count).Msg("Extracted cookie entries")
	return session.Finalize(models.OutcomeSuccess, fmt.Sprintf("extracted %d cookie entries", count))
}

// findCBID locates the customer id on the rendered page: first by waiting
// for a script tag with a UUID-valued data-cbid attribute, then by
// matching the two URL-embedded shapes against the markup.
func (e *Extractor) findCBID(ctx context.Context, deps cmp.Deps, logger zerolog.Logger) (string, models.CrawlOutcome, string) {
	script, found := deps.Page.WaitScript(ctx, deps.WaitOr(cbidWait), func(s page.Script) bool {
		return cmp.IsUUID(s.Attr("data-cbid"))
	})
	if found {
		logger.Info().Msg("Found Cookiebot id via data-cbid attribute")
		return script.Attr("data-cbid"), models.OutcomeSuccess, ""
	}
	logger.Info().Msg("Timeout while looking for data-cbid, trying URL-embedded variants")

	markup, err := deps.Page.Markup(ctx)
	if err != nil {
		return "", models.OutcomeUnknown, fmt.Sprintf("failed to read page markup: %v", err)
	}
	if m := ccURLPattern.FindStringSubmatch(markup); m != nil {
		return m[1], models.OutcomeSuccess, ""
	}
	if m := cbidParamPattern.FindStringSubmatch(markup); m != nil {
		return m[1], models.OutcomeSuccess, ""
	}
	return "", models.OutcomeParseError, "all attempts to find the Cookiebot cbid failed"
}

// resolveReferer extracts the referer query parameter from a cc.js URL
// already present in the markup. The referer Cookiebot expects is not
// always the crawled site itself; when none is found the site URL is the
// fallback.
func (e *Extractor) resolveReferer(ctx context.Context, session cmp.PageSession, cbid, fallback string, logger zerolog.Logger) string {
	markup, err := session.Markup(ctx)
	if err != nil {
		logger.Debug().Err(err).Msg("Could not read markup for referer resolution")
		return fallback
	}
	refPattern := regexp.MustCompile(
		`https://consent\.cookiebot\.com/` + regexp.QuoteMeta(cbid) + `/cc\.js.*(\?|&amp;)referer=(.*?)&.*`)
	if m := refPattern.FindStringSubmatch(markup); m != nil {
		logger.Debug().Str("referer", m[2]).Msg("Found declared referer")
		return m[2]
	}
	logger.Debug().Str("fallback", fallback).Msg("No declared referer, using site URL")
	return fallback
}

// parseDeclaration walks the five bucket tables inside cc.js. Each table
// row is a tuple: name, domain, purpose, expiry, type name, type id,
// match regex, destination URL. A missing bucket is logged and skipped;
// a row that cannot be evaluated aborts the parse.
func (e *Extractor) parseDeclaration(body, site string, session *models.CrawlSession, logger zerolog.Logger) (int, error) {
	count := 0
	for _, b := range buckets {
		m := b.pattern.FindStringSubmatch(body)
		if m == nil {
			logger.Warn().Str("bucket", b.name).Msg("Could not find array for category bucket")
			continue
		}

		rows, err := jsliteral.EvalArray(m[1])
		if err != nil {
			return count, fmt.Errorf("bucket %s: %w", b.name, err)
		}
		for _, row := range rows {
			tuple, ok := row.([]interface{})
			if !ok {
				return count, fmt.Errorf("bucket %s: row is %T, not a tuple", b.name, row)
			}
			if len(tuple) < 6 {
				return count, fmt.Errorf("bucket %s: tuple has %d fields, want at least 6", b.name, len(tuple))
			}
			cmp.Collect(logger, session, models.CookieRecord{
				SiteURL: site,
				Name:    jsliteral.AsString(tuple[0]),
				Domain:  jsliteral.AsString(tuple[1]),
				Path:    "/",
				Purpose: jsliteral.AsString(tuple[2]),
				Type:    jsliteral.AsString(tuple[5]),
				Labels:  []models.CategoryLabel{{Category: b.category, Name: b.name}},
			})
			count++
		}
	}
	return count, nil
}
