// Package onetrust extracts cookie category data from sites using the
// OneTrust consent platform (including its OptAnon, CookieLaw and
// CookiePro brandings). The data comes in two layouts:
//
// Variant A: proper JSON hosted on the consent CDN, reached through a
// ruleset index keyed by a "data domain" id found on the rendered page.
//
// Variant B: a JavaScript object embedded in a consent script referenced
// directly from the page. Not valid JSON; the Groups array is cut out by
// bracket counting and evaluated as a script literal. This variant is the
// more common one and serves as the fallback when A yields nothing.
package onetrust

import (
	"context"
	"encoding/json"
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

// scriptWait bounds the poll for the loader tag on the rendered page.
const scriptWait = 5 * time.Second

// origins are the four CDN hosts OneTrust serves consent data from.
var origins = []string{
	"https://cdn.cookielaw.org",
	"https://optanon.blob.core.windows.net",
	"https://cookie-cdn.cookiepro.com",
	"https://cookiepro.blob.core.windows.net",
}

// consentScriptPatterns match Variant B script URLs of the form
// {origin}/consent/{uuid}[suffix].js, anchored at the start so the match
// itself is the fetchable URL (query strings are dropped).
var consentScriptPatterns = buildConsentScriptPatterns()

func buildConsentScriptPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(origins))
	for _, origin := range origins {
		patterns = append(patterns, regexp.MustCompile(
			`^`+regexp.QuoteMeta(origin)+`/consent/`+cmp.UUIDPattern.String()+`[a-zA-Z0-9_-]*\.js`))
	}
	return patterns
}

// groupsMarker locates the start of the Groups array inside a Variant B
// consent script.
var groupsMarker = regexp.MustCompile(`,\s*Groups:\s*\[`)

// Extractor implements cmp.Extractor for OneTrust.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Provider() cmp.Provider { return cmp.ProviderOneTrust }

// Scrape tries Variant A and falls through to Variant B; when both fail,
// Variant B's outcome is the one recorded for the site.
func (e *Extractor) Scrape(ctx context.Context, site string, deps cmp.Deps) *models.CrawlSession {
	session := models.NewCrawlSession(site, string(cmp.ProviderOneTrust))
	logger := reqctx.Logger(ctx, log.Logger)

	probe := deps.Fetch.Get(ctx, site, fetch.Options{})
	if !probe.OK() {
		return session.Finalize(probe.Outcome, probe.Diagnostic)
	}
	logger.Debug().Msg("Connection successful")

	outcome, diag := e.variantA(ctx, site, deps, session, logger)
	if outcome == models.OutcomeSuccess {
		return session.Finalize(outcome, diag)
	}
	logger.Warn().Stringer("outcome", outcome).Str("reason", diag).Msg("Variant A failed")

	logger.Info().Msg("Attempting Variant B")
	outcome, diag = e.variantB(ctx, site, deps, session, logger)
	return session.Finalize(outcome, diag)
}

// variantA walks the JSON API: loader tag -> ruleset index -> per-ruleset
// English consent documents.
func (e *Extractor) variantA(ctx context.Context, site string, deps cmp.Deps, session *models.CrawlSession, logger zerolog.Logger) (models.CrawlOutcome, string) {
	origin, ddID, outcome, diag := e.findDataDomain(ctx, site, deps, logger)
	if outcome != models.OutcomeSuccess {
		return outcome, diag
	}
	logger.Debug().Str("origin", origin).Str("dd_id", ddID).Msg("OneTrust data domain found")

	ids, outcome, diag := e.rulesetIDs(ctx, deps.Fetch, origin, ddID)
	if outcome != models.OutcomeSuccess {
		return outcome, diag
	}
	logger.Info().Int("rulesets", len(ids)).Msg("Found ruleset ids")

	count := e.parseRulesets(ctx, site, deps.Fetch, origin, ddID, ids, session, logger)
	if count == 0 {
		return models.OutcomeParseError, fmt.Sprintf("failed to extract cookies from rulesets: %v", ids)
	}
	logger.Info().Int("cookies", count).Msg("Variant A succeeded")
	return models.OutcomeSuccess, fmt.Sprintf("cookies extracted: %d", count)
}

// findDataDomain navigates to the site and looks for a script tag whose
// data-domain-script attribute is a UUID and whose src sits on a known
// consent CDN. Returns the matched origin and the id.
func (e *Extractor) findDataDomain(ctx context.Context, site string, deps cmp.Deps, logger zerolog.Logger) (string, string, models.CrawlOutcome, string) {
	pg := deps.Page
	nav := pg.Navigate(ctx, site)
	if !nav.OK() {
		return "", "", nav.Outcome, nav.Diagnostic
	}

	script, found := pg.WaitScript(ctx, deps.WaitOr(scriptWait), func(s page.Script) bool {
		return cmp.IsUUID(s.Attr("data-domain-script")) && matchOrigin(s.Src) != ""
	})
	if found {
		return matchOrigin(script.Src), script.Attr("data-domain-script"), models.OutcomeSuccess, ""
	}

	// One diagnostic pass over whatever is in the DOM now, so near
	// misses show up in the log.
	if scripts, err := pg.Scripts(ctx); err == nil {
		for _, s := range scripts {
			if !cmp.IsUUID(s.Attr("data-domain-script")) {
				continue
			}
			if s.Src == "" {
				logger.Warn().Str("dd_id", s.Attr("data-domain-script")).Msg("Found a data-domain-script tag without a source URL")
			} else {
				logger.Warn().Str("src", s.Src).Msg("Found a data-domain-script tag with an unknown source URL")
			}
		}
	}
	return "", "", models.OutcomeParseError, fmt.Sprintf("could not find data-domain script id on website: %s", site)
}

func matchOrigin(src string) string {
	for _, origin := range origins {
		if strings.HasPrefix(src, origin) {
			return origin
		}
	}
	return ""
}

// rulesetIDs fetches the ruleset index and keeps the ids of rulesets that
// offer English content.
func (e *Extractor) rulesetIDs(ctx context.Context, getter cmp.Getter, origin, ddID string) ([]string, models.CrawlOutcome, string) {
	indexURL := fmt.Sprintf("%s/consent/%s/%s.json", origin, ddID, ddID)
	res := getter.Get(ctx, indexURL, fetch.Options{})
	if !res.OK() {
		return nil, res.Outcome, res.Diagnostic
	}

	var index struct {
		RuleSet []struct {
			ID                          string                 `json:"Id"`
			LanguageSwitcherPlaceholder map[string]interface{} `json:"LanguageSwitcherPlaceholder"`
		} `json:"RuleSet"`
	}
	if err := json.Unmarshal(res.Body, &index); err != nil {
		return nil, models.OutcomeParseError, fmt.Sprintf("failed to decode ruleset index %s: %v", indexURL, err)
	}
	if index.RuleSet == nil {
		return nil, models.OutcomeParseError, fmt.Sprintf("no valid 'RuleSet' element found on %s", indexURL)
	}

	var ids []string
	for _, rs := range index.RuleSet {
		if rs.LanguageSwitcherPlaceholder == nil {
			continue
		}
		for _, v := range rs.LanguageSwitcherPlaceholder {
			if s, ok := v.(string); ok && s == "en" {
				ids = append(ids, rs.ID)
				break
			}
		}
	}
	if len(ids) == 0 {
		return nil, models.OutcomeParseError, fmt.Sprintf("no English ruleset found on %s", indexURL)
	}
	return ids, models.OutcomeSuccess, ""
}

// rulesetDocument is the Variant A consent JSON shape, reduced to the
// fields the walk needs.
type rulesetDocument struct {
	DomainData struct {
		Language struct {
			Culture string `json:"Culture"`
		} `json:"Language"`
		Groups []struct {
			GroupName         string          `json:"GroupName"`
			FirstPartyCookies []rulesetCookie `json:"FirstPartyCookies"`
			Hosts             []struct {
				Cookies []rulesetCookie `json:"Cookies"`
			} `json:"Hosts"`
		} `json:"Groups"`
	} `json:"DomainData"`
}

type rulesetCookie struct {
	Name        string `json:"Name"`
	Host        string `json:"Host"`
	Description string `json:"description"`
}

// parseRulesets fetches every English ruleset document and collects its
// cookies. Per-ruleset failures are logged and skipped; only the total
// matters to the caller.
func (e *Extractor) parseRulesets(ctx context.Context, site string, getter cmp.Getter, origin, ddID string, ids []string, session *models.CrawlSession, logger zerolog.Logger) int {
	count := 0
	for _, id := range ids {
		rulesetURL := fmt.Sprintf("%s/consent/%s/%s/en.json", origin, ddID, id)
		res := getter.Get(ctx, rulesetURL, fetch.Options{})
		if !res.OK() {
			logger.Error().Str("url", rulesetURL).Stringer("outcome", res.Outcome).Str("reason", res.Diagnostic).Msg("Failed to retrieve ruleset")
			continue
		}

		var doc rulesetDocument
		if err := json.Unmarshal(res.Body, &doc); err != nil {
			logger.Error().Str("url", rulesetURL).Err(err).Msg("Failed to decode ruleset json")
			continue
		}
		if !strings.Contains(doc.DomainData.Language.Culture, "en") {
			logger.Warn().Str("culture", doc.DomainData.Language.Culture).Msg("Unrecognized language in ruleset")
			continue
		}

		for _, g := range doc.DomainData.Groups {
			category := resolveCategory(logger, g.GroupName)
			label := models.CategoryLabel{Category: category, Name: g.GroupName}

			for _, c := range g.FirstPartyCookies {
				e.collect(session, site, c, label, logger)
				count++
			}
			for _, h := range g.Hosts {
				for _, c := range h.Cookies {
					e.collect(session, site, c, label, logger)
					count++
				}
			}
		}
	}
	return count
}

func (e *Extractor) collect(session *models.CrawlSession, site string, c rulesetCookie, label models.CategoryLabel, logger zerolog.Logger) {
	cmp.Collect(logger, session, models.CookieRecord{
		SiteURL: site,
		Name:    c.Name,
		Domain:  c.Host,
		Path:    "/",
		Purpose: c.Description,
		Labels:  []models.CategoryLabel{label},
	})
}

// variantB re-navigates, locates the consent script URL, cuts the Groups
// array out of the script body and walks the evaluated object.
func (e *Extractor) variantB(ctx context.Context, site string, deps cmp.Deps, session *models.CrawlSession, logger zerolog.Logger) (models.CrawlOutcome, string) {
	scriptURL, outcome, diag := e.findConsentScript(ctx, site, deps)
	if outcome != models.OutcomeSuccess {
		return outcome, diag
	}
	logger.Debug().Str("url", scriptURL).Msg("OneTrust consent script found")

	consent, outcome, diag := e.parseConsentScript(ctx, deps.Fetch, scriptURL)
	if outcome != models.OutcomeSuccess {
		return outcome, diag
	}

	count, outcome, diag := e.extractFromConsent(site, consent, session, logger)
	if outcome != models.OutcomeSuccess {
		return outcome, diag
	}
	logger.Info().Int("cookies", count).Msg("Variant B succeeded")
	return models.OutcomeSuccess, fmt.Sprintf("successfully retrieved %d cookies", count)
}

func (e *Extractor) findConsentScript(ctx context.Context, site string, deps cmp.Deps) (string, models.CrawlOutcome, string) {
	pg := deps.Page
	nav := pg.Navigate(ctx, site)
	if !nav.OK() {
		return "", nav.Outcome, nav.Diagnostic
	}

	script, found := pg.WaitScript(ctx, deps.WaitOr(scriptWait), func(s page.Script) bool {
		return matchConsentScript(s.Src) != ""
	})
	if found {
		return matchConsentScript(script.Src), models.OutcomeSuccess, ""
	}

	scripts, err := pg.Scripts(ctx)
	if err != nil || len(scripts) == 0 {
		return "", models.OutcomeConnFailed, "Variant B: timed out trying to find OneTrust javascript tags"
	}
	return "", models.OutcomeParseError, "Variant B: could not find OneTrust javascript url in any tag"
}

// matchConsentScript returns the fetchable consent script URL embedded at
// the start of src, or "" when src is not a consent script.
func matchConsentScript(src string) string {
	for _, p := range consentScriptPatterns {
		if m := p.FindString(src); m != "" {
			return m
		}
	}
	return ""
}

// parseConsentScript cuts the balanced Groups array out of the script
// body and evaluates it as an object literal.
func (e *Extractor) parseConsentScript(ctx context.Context, getter cmp.Getter, scriptURL string) (map[string]interface{}, models.CrawlOutcome, string) {
	res := getter.Get(ctx, scriptURL, fetch.Options{})
	if !res.OK() {
		return nil, res.Outcome, res.Diagnostic
	}

	body := strings.TrimSpace(string(res.Body))
	body = strings.ReplaceAll(body, "\n", " ")

	loc := groupsMarker.FindStringIndex(body)
	if loc == nil {
		return nil, models.OutcomeParseError, "failed to find desired javascript object in OneTrust consent script"
	}

	// Bracket counting from the end of the marker: the marker's [ opened
	// depth 1, so the scan stops one byte past the matching ].
	i := loc[1]
	open := 1
	for i < len(body) && open > 0 {
		switch body[i] {
		case '[':
			open++
		case ']':
			open--
		}
		i++
	}
	groupString := body[loc[0]+1 : i]

	consent, err := jsliteral.EvalObject("{" + groupString + "}")
	if err != nil {
		return nil, models.OutcomeUnknown, fmt.Sprintf("unexpected error while parsing OneTrust javascript: %v", err)
	}
	return consent, models.OutcomeSuccess, ""
}

// extractFromConsent walks the Variant B Groups structure. A group's
// category name lives on the group itself, or on its parent when the
// group declares one. Structural surprises abort with PARSE_ERROR, the
// way a missing key would.
func (e *Extractor) extractFromConsent(site string, consent map[string]interface{}, session *models.CrawlSession, logger zerolog.Logger) (int, models.CrawlOutcome, string) {
	groups, ok := consent["Groups"].([]interface{})
	if !ok {
		return 0, models.OutcomeParseError, "consent object has no Groups array"
	}

	count := 0
	for _, raw := range groups {
		group, ok := raw.(map[string]interface{})
		if !ok {
			return 0, models.OutcomeParseError, fmt.Sprintf("group entry is %T, not an object", raw)
		}

		parent, present := group["Parent"]
		if !present {
			return 0, models.OutcomeParseError, "group entry has no Parent field"
		}
		nameHolder := group
		if parent != nil {
			parentMap, ok := parent.(map[string]interface{})
			if !ok {
				return 0, models.OutcomeParseError, fmt.Sprintf("group Parent is %T, not an object", parent)
			}
			nameHolder = parentMap
		}

		catName, err := groupNameText(nameHolder)
		if err != nil {
			return 0, models.OutcomeParseError, err.Error()
		}
		label := models.CategoryLabel{Category: resolveCategory(logger, catName), Name: catName}

		cookies, ok := group["Cookies"].([]interface{})
		if !ok {
			return 0, models.OutcomeParseError, "group entry has no Cookies array"
		}
		for _, rawCookie := range cookies {
			cookie, ok := rawCookie.(map[string]interface{})
			if !ok {
				return 0, models.OutcomeParseError, fmt.Sprintf("cookie entry is %T, not an object", rawCookie)
			}
			name, ok := cookie["Name"]
			if !ok {
				return 0, models.OutcomeParseError, "cookie entry has no Name field"
			}
			host, ok := cookie["Host"]
			if !ok {
				return 0, models.OutcomeParseError, "cookie entry has no Host field"
			}
			var purpose string
			if desc, ok := cookie["description"]; ok {
				purpose = jsliteral.AsString(desc)
			}

			cmp.Collect(logger, session, models.CookieRecord{
				SiteURL: site,
				Name:    jsliteral.AsString(name),
				Domain:  jsliteral.AsString(host),
				Path:    "/",
				Purpose: purpose,
				Labels:  []models.CategoryLabel{label},
			})
			count++
		}
	}

	if count == 0 {
		return 0, models.OutcomeMalformedResponse, "consent platform script contained zero cookies"
	}
	return count, models.OutcomeSuccess, ""
}

// groupNameText digs GroupLanguagePropertiesSets[0].GroupName.Text out of
// a group or parent object.
func groupNameText(holder map[string]interface{}) (string, error) {
	sets, ok := holder["GroupLanguagePropertiesSets"].([]interface{})
	if !ok || len(sets) == 0 {
		return "", fmt.Errorf("group has no GroupLanguagePropertiesSets")
	}
	first, ok := sets[0].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("GroupLanguagePropertiesSets[0] is %T, not an object", sets[0])
	}
	groupName, ok := first["GroupName"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("group language set has no GroupName object")
	}
	text, ok := groupName["Text"]
	if !ok {
		return "", fmt.Errorf("GroupName has no Text field")
	}
	return jsliteral.AsString(text), nil
}
