// Package termly extracts cookie category data from sites using the
// Termly consent platform. The embed tag on the rendered page carries a
// website uuid; that uuid leads to a policy document listing, which in
// turn leads to the cookie table, both served as plain JSON from the
// Termly API.
package termly

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/consent-audit/crawl/internal/cmp"
	"github.com/consent-audit/crawl/internal/debugdump"
	"github.com/consent-audit/crawl/internal/fetch"
	"github.com/consent-audit/crawl/internal/page"
	"github.com/consent-audit/crawl/internal/reqctx"
	"github.com/consent-audit/crawl/pkg/models"
)

const (
	apiBase        = "https://app.termly.io/api/v1/snippets/websites/"
	embedSrcPrefix = "https://app.termly.io/embed.min.js"
	embedDataName  = "termly-embed-banner"

	// embedWait bounds the poll for the embed tag on the rendered page.
	embedWait = 3 * time.Second
)

// bucketCategories maps the Termly bucket names to categories. The
// social_networking bucket has no counterpart and stays unknown;
// performance maps to functional, matching how Termly describes it.
var bucketCategories = map[string]models.CookieCategory{
	"essential":         models.CategoryEssential,
	"performance":       models.CategoryFunctional,
	"analytics":         models.CategoryAnalytical,
	"advertising":       models.CategoryAdvertising,
	"social_networking": models.CategoryUnknown,
	"unclassified":      models.CategoryUnclassified,
}

// bucketOrder fixes the walk order so records come out the same way
// every run.
var bucketOrder = []string{
	"essential",
	"performance",
	"analytics",
	"advertising",
	"social_networking",
	"unclassified",
}

// knownAttributes are the cookie keys Termly is known to serve. Anything
// outside this set gets logged so schema drift shows up in crawl logs.
var knownAttributes = map[string]bool{
	"name":                true,
	"category":            true,
	"tracker_type":        true,
	"country":             true,
	"domain":              true,
	"source":              true,
	"url":                 true,
	"value":               true,
	"en_us":               true,
	"service":             true,
	"service_policy_link": true,
	"expire":              true,
}

// Extractor implements cmp.Extractor for Termly.
type Extractor struct {
	dumps atomic.Int64
}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Provider() cmp.Provider { return cmp.ProviderTermly }

// dumpName numbers the dump files so one site's payload never
// overwrites another's within a run.
func (e *Extractor) dumpName() string {
	return fmt.Sprintf("termly_malf_resp_%d.json", e.dumps.Add(1))
}

// Scrape renders the page, follows the embed uuid through the Termly API
// and parses the cookie table. There is no connectivity probe: the
// navigation itself is the first contact with the site.
func (e *Extractor) Scrape(ctx context.Context, site string, deps cmp.Deps) *models.CrawlSession {
	session := models.NewCrawlSession(site, string(cmp.ProviderTermly))
	logger := reqctx.Logger(ctx, log.Logger)

	body, outcome, diag := e.fetchCookieTable(ctx, site, deps, logger)
	if outcome != models.OutcomeSuccess {
		return session.Finalize(outcome, diag)
	}
	logger.Info().Msg("Retrieved Termly cookie table")

	outcome, diag = e.parseCookieTable(site, body, session, deps.Debug, logger)
	return session.Finalize(outcome, diag)
}

// fetchCookieTable walks the two-step API: the website uuid from the
// embed tag yields the policy listing, the Cookie Policy document uuid
// within it yields the cookie table body.
func (e *Extractor) fetchCookieTable(ctx context.Context, site string, deps cmp.Deps, logger zerolog.Logger) ([]byte, models.CrawlOutcome, string) {
	nav := deps.Page.Navigate(ctx, site)
	if !nav.OK() {
		return nil, nav.Outcome, nav.Diagnostic
	}

	websiteUUID, outcome, diag := e.findWebsiteUUID(ctx, deps, logger)
	if outcome != models.OutcomeSuccess {
		return nil, outcome, diag
	}
	logger.Info().Str("website_uuid", websiteUUID).Msg("Found Termly embed uuid")

	policyURL := apiBase + websiteUUID
	res := deps.Fetch.Get(ctx, policyURL, fetch.Options{})
	if !res.OK() {
		return nil, res.Outcome, "failed to retrieve Termly policy JSON: " + res.Diagnostic
	}

	var policy struct {
		Documents []struct {
			Name string `json:"name"`
			UUID string `json:"uuid"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(res.Body, &policy); err != nil {
		return nil, models.OutcomeJSONDecodeError, fmt.Sprintf("failed to decode Termly policy JSON: %v", err)
	}

	var documentUUID string
	for _, doc := range policy.Documents {
		if doc.Name != "Cookie Policy" {
			continue
		}
		if cmp.IsUUID(doc.UUID) {
			documentUUID = doc.UUID
			break
		}
		logger.Error().Str("uuid", doc.UUID).Msg("Policy document entry carries an invalid uuid")
	}
	if documentUUID == "" {
		return nil, models.OutcomeParseError, "failed to retrieve second UUID string from policy JSON"
	}
	logger.Info().Str("document_uuid", documentUUID).Msg("Found cookie policy document")

	cookiesURL := apiBase + websiteUUID + "/documents/" + documentUUID + "/cookies"
	res = deps.Fetch.Get(ctx, cookiesURL, fetch.Options{})
	if !res.OK() {
		return nil, res.Outcome, fmt.Sprintf("failed to retrieve Termly cookies JSON from %s: %s", cookiesURL, res.Diagnostic)
	}
	return res.Body, models.OutcomeSuccess, ""
}

// findWebsiteUUID polls for a script tag that is either the embed.min.js
// loader or marked as the embed banner, and reads the website uuid from
// its id or data-website-uuid attribute.
func (e *Extractor) findWebsiteUUID(ctx context.Context, deps cmp.Deps, logger zerolog.Logger) (string, models.CrawlOutcome, string) {
	pg := deps.Page
	script, found := pg.WaitScript(ctx, deps.WaitOr(embedWait), func(s page.Script) bool {
		return isEmbedTag(s) && embedUUID(s) != ""
	})
	if found {
		return embedUUID(script), models.OutcomeSuccess, ""
	}
	logger.Info().Msg("Timeout while looking for Termly uuid")

	if scripts, err := pg.Scripts(ctx); err == nil {
		for _, s := range scripts {
			if isEmbedTag(s) && embedUUID(s) == "" {
				logger.Warn().Msg("Found Termly embed banner script tag without an id attribute")
			}
		}
	}
	return "", models.OutcomeCMPNotFound, "could not find Termly UUID to access cookie policies"
}

func isEmbedTag(s page.Script) bool {
	return strings.HasPrefix(s.Src, embedSrcPrefix) || s.Attr("data-name") == embedDataName
}

// embedUUID prefers the id attribute and falls back to
// data-website-uuid; either must be a well-formed uuid.
func embedUUID(s page.Script) string {
	if cmp.IsUUID(s.ID) {
		return s.ID
	}
	if v := s.Attr("data-website-uuid"); cmp.IsUUID(v) {
		return v
	}
	return ""
}

// parseCookieTable walks the bucket map inside the cookie table body.
// Unknown buckets and attributes are logged rather than fatal; a shape
// that cannot be walked at all is a parse error and gets dumped for
// later inspection.
func (e *Extractor) parseCookieTable(site string, body []byte, session *models.CrawlSession, debug debugdump.Sink, logger zerolog.Logger) (models.CrawlOutcome, string) {
	var table map[string]interface{}
	if err := json.Unmarshal(body, &table); err != nil {
		return models.OutcomeJSONDecodeError, fmt.Sprintf("failed to decode Termly cookies JSON: %v", err)
	}

	rawBuckets, ok := table["cookies"]
	if !ok {
		debug.Dump(e.dumpName(), body)
		return models.OutcomeMalformedResponse, "no 'cookies' attribute in cookies JSON"
	}
	buckets, ok := rawBuckets.(map[string]interface{})
	if !ok {
		debug.Dump(e.dumpName(), body)
		return models.OutcomeParseError, fmt.Sprintf("cookies attribute is %T, not an object", rawBuckets)
	}

	count := 0
	unexpected := false
	for _, bucket := range bucketOrder {
		rawList, ok := buckets[bucket]
		if !ok {
			continue
		}
		list, ok := rawList.([]interface{})
		if !ok {
			debug.Dump(e.dumpName(), body)
			return models.OutcomeParseError, fmt.Sprintf("bucket %q is %T, not an array", bucket, rawList)
		}
		category := bucketCategories[bucket]

		for _, rawCookie := range list {
			cookie, ok := rawCookie.(map[string]interface{})
			if !ok {
				debug.Dump(e.dumpName(), body)
				return models.OutcomeParseError, fmt.Sprintf("cookie entry in bucket %q is %T, not an object", bucket, rawCookie)
			}

			for k := range cookie {
				if !knownAttributes[k] {
					unexpected = true
					logger.Warn().Str("attribute", k).Msg("Unknown cookie attribute")
				}
			}

			count++
			name := optionalString(cookie, "name")
			if _, ok := cookie["name"]; !ok {
				unexpected = true
				logger.Warn().Int("cookie", count).Msg("Cookie has no name")
			}
			if declared := optionalString(cookie, "category"); declared != "" && declared != bucket {
				unexpected = true
				logger.Warn().Str("bucket", bucket).Str("declared", declared).Msg("Category in cookie mismatches category array")
			}

			cmp.Collect(logger, session, models.CookieRecord{
				SiteURL: site,
				Name:    name,
				Domain:  optionalString(cookie, "domain"),
				Path:    "/",
				Purpose: optionalString(cookie, "en_us"),
				Type:    optionalString(cookie, "tracker_type"),
				Labels:  []models.CategoryLabel{{Category: category, Name: bucket}},
			})
		}
	}

	// Buckets outside the known set carry no category mapping and are
	// skipped, but they should be visible in the logs.
	var unknown []string
	for bucket := range buckets {
		if _, ok := bucketCategories[bucket]; !ok {
			unknown = append(unknown, bucket)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		unexpected = true
		for _, bucket := range unknown {
			logger.Error().Str("bucket", bucket).Msg("Unknown cookie category")
		}
	}

	if unexpected {
		debug.Dump(e.dumpName(), body)
	}
	if count == 0 {
		return models.OutcomeNoCookies, "no cookies found in Termly JSON"
	}
	return models.OutcomeSuccess, fmt.Sprintf("number of cookies extracted: %d", count)
}

func optionalString(cookie map[string]interface{}, key string) string {
	v, ok := cookie[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
