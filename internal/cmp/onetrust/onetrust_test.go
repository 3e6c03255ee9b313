package onetrust

import (
	"context"
	"testing"

	"github.com/consent-audit/crawl/internal/cmp"
	"github.com/consent-audit/crawl/internal/cmp/cmptest"
	"github.com/consent-audit/crawl/internal/debugdump"
	"github.com/consent-audit/crawl/internal/page"
	"github.com/consent-audit/crawl/pkg/models"
)

const (
	testSite = "https://example.com/"
	testDD   = "3ac44c5b-1f21-4b63-9a62-f4d49c9d5f82"
)

var (
	// Variant A loader: data-domain-script id on a CDN-hosted stub.
	loaderHTML = `<html><head>` +
		`<script src="https://cdn.cookielaw.org/scripttemplates/otSDKStub.js" data-domain-script="` + testDD + `" type="text/javascript"></script>` +
		`</head><body></body></html>`

	indexURL = "https://cdn.cookielaw.org/consent/" + testDD + "/" + testDD + ".json"

	// Variant B consent script referenced straight from the page.
	consentJS   = "https://cdn.cookielaw.org/consent/" + testDD + ".js"
	consentHTML = `<html><head>` +
		`<script src="` + consentJS + `" type="text/javascript"></script>` +
		`</head><body></body></html>`
)

func rulesetURL(id string) string {
	return "https://cdn.cookielaw.org/consent/" + testDD + "/" + id + "/en.json"
}

func newDeps(html string) (*cmptest.Getter, *cmptest.Page, cmp.Deps) {
	getter := cmptest.NewGetter()
	pg := &cmptest.Page{HTML: html}
	return getter, pg, cmp.Deps{Fetch: getter, Page: pg, Debug: debugdump.NopSink{}}
}

func TestScrapeVariantAExtractsGroups(t *testing.T) {
	getter, _, deps := newDeps(loaderHTML)
	getter.Responses[testSite] = cmptest.OK("<html></html>")
	getter.Responses[indexURL] = cmptest.OK(`{"RuleSet": [
		{"Id": "rs-en", "LanguageSwitcherPlaceholder": {"en": "en"}},
		{"Id": "rs-de", "LanguageSwitcherPlaceholder": {"de": "de"}}
	]}`)
	getter.Responses[rulesetURL("rs-en")] = cmptest.OK(`{"DomainData": {
		"Language": {"Culture": "en-US"},
		"Groups": [{
			"GroupName": "Targeting Cookies",
			"FirstPartyCookies": [{"Name": "_ga", "Host": "example.com", "description": "Used to distinguish users."}],
			"Hosts": [{"Cookies": [{"Name": "fr", "Host": "facebook.com", "description": "Browser identification."}]}]
		}]
	}}`)

	session := New().Scrape(context.Background(), testSite, deps)
	if session.Outcome != models.OutcomeSuccess {
		t.Fatalf("Outcome = %v (%s), want SUCCESS", session.Outcome, session.Diagnostic)
	}
	records := session.Records.Records()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	ga := records[0]
	if ga.Name != "_ga" || ga.Domain != "example.com" || ga.Path != "/" {
		t.Errorf("first record = %q on %q path %q", ga.Name, ga.Domain, ga.Path)
	}
	if ga.Purpose != "Used to distinguish users." {
		t.Errorf("Purpose = %q", ga.Purpose)
	}
	if len(ga.Labels) != 1 || ga.Labels[0].Category != models.CategoryAdvertising || ga.Labels[0].Name != "Targeting Cookies" {
		t.Errorf("Labels = %+v, want Targeting Cookies / advertising", ga.Labels)
	}

	if records[1].Name != "fr" || records[1].Domain != "facebook.com" {
		t.Errorf("second record = %q on %q, want host cookie fr", records[1].Name, records[1].Domain)
	}
	// The de ruleset was filtered out at the index, so only the en
	// document may have been fetched.
	for _, req := range getter.Requests {
		if req.URL == rulesetURL("rs-de") {
			t.Error("non-English ruleset was fetched")
		}
	}
}

func TestScrapeVariantASkipsForeignCulture(t *testing.T) {
	getter, _, deps := newDeps(loaderHTML)
	getter.Responses[testSite] = cmptest.OK("<html></html>")
	getter.Responses[indexURL] = cmptest.OK(`{"RuleSet": [
		{"Id": "rs-1", "LanguageSwitcherPlaceholder": {"en": "en"}},
		{"Id": "rs-2", "LanguageSwitcherPlaceholder": {"en": "en"}}
	]}`)
	getter.Responses[rulesetURL("rs-1")] = cmptest.OK(`{"DomainData": {
		"Language": {"Culture": "fr-FR"},
		"Groups": [{"GroupName": "Necessary", "FirstPartyCookies": [{"Name": "locale", "Host": "example.com"}]}]
	}}`)
	getter.Responses[rulesetURL("rs-2")] = cmptest.OK(`{"DomainData": {
		"Language": {"Culture": "en-GB"},
		"Groups": [{"GroupName": "Strictly Necessary Cookies", "FirstPartyCookies": [{"Name": "sid", "Host": "example.com"}]}]
	}}`)

	session := New().Scrape(context.Background(), testSite, deps)
	if session.Outcome != models.OutcomeSuccess {
		t.Fatalf("Outcome = %v (%s), want SUCCESS", session.Outcome, session.Diagnostic)
	}
	records := session.Records.Records()
	if len(records) != 1 || records[0].Name != "sid" {
		t.Fatalf("records = %+v, want just sid from the en-GB ruleset", records)
	}
	if records[0].Labels[0].Category != models.CategoryEssential {
		t.Errorf("Category = %v, want essential", records[0].Labels[0].Category)
	}
}

// When Variant A comes up empty the crawl moves on to Variant B, and a
// Variant B failure is the outcome that sticks.
func TestScrapeVariantAFailuresFallThroughToB(t *testing.T) {
	run := func(t *testing.T, index string, rulesets map[string]string) *models.CrawlSession {
		t.Helper()
		getter, pg, deps := newDeps(loaderHTML)
		getter.Responses[testSite] = cmptest.OK("<html></html>")
		getter.Responses[indexURL] = cmptest.OK(index)
		for id, doc := range rulesets {
			getter.Responses[rulesetURL(id)] = cmptest.OK(doc)
		}
		session := New().Scrape(context.Background(), testSite, deps)
		if got := len(pg.Navigated); got != 2 {
			t.Errorf("navigated %d times, want 2 (Variant A then Variant B)", got)
		}
		return session
	}

	t.Run("missing ruleset element", func(t *testing.T) {
		session := run(t, `{"Domain": "example.com"}`, nil)
		if session.Outcome != models.OutcomeParseError {
			t.Errorf("Outcome = %v, want PARSE_ERROR from Variant B", session.Outcome)
		}
	})
	t.Run("no english ruleset", func(t *testing.T) {
		session := run(t, `{"RuleSet": [{"Id": "rs-de", "LanguageSwitcherPlaceholder": {"de": "de"}}]}`, nil)
		if session.Outcome != models.OutcomeParseError {
			t.Errorf("Outcome = %v, want PARSE_ERROR from Variant B", session.Outcome)
		}
	})
	t.Run("rulesets yield zero cookies", func(t *testing.T) {
		session := run(t,
			`{"RuleSet": [{"Id": "rs-1", "LanguageSwitcherPlaceholder": {"en": "en"}}]}`,
			map[string]string{"rs-1": `{"DomainData": {"Language": {"Culture": "en"}, "Groups": []}}`})
		if session.Outcome != models.OutcomeParseError {
			t.Errorf("Outcome = %v, want PARSE_ERROR from Variant B", session.Outcome)
		}
	})
}

func TestScrapeProbeFailureSkipsBrowser(t *testing.T) {
	getter, pg, deps := newDeps(loaderHTML)
	getter.Responses[testSite] = cmptest.Fail(models.OutcomeHTTPError, "HTTP error: 403 Forbidden")

	session := New().Scrape(context.Background(), testSite, deps)
	if session.Outcome != models.OutcomeHTTPError {
		t.Errorf("Outcome = %v, want HTTP_ERROR", session.Outcome)
	}
	if len(pg.Navigated) != 0 {
		t.Errorf("browser navigated to %v despite failed probe", pg.Navigated)
	}
}

func TestScrapeVariantBConsentScript(t *testing.T) {
	getter, _, deps := newDeps(consentHTML)
	getter.Responses[testSite] = cmptest.OK("<html></html>")
	getter.Responses[consentJS] = cmptest.OK(`var otBannerSdk = {"cctId": "abc", Groups: [
		{Parent: null,
		 GroupLanguagePropertiesSets: [{GroupName: {Text: 'Targeting Cookies'}}],
		 Cookies: [{Name: '_ga', Host: 'example.com', description: 'Used to distinguish users.'}]},
		{Parent: {GroupLanguagePropertiesSets: [{GroupName: {Text: 'Strictly Necessary Cookies'}}]},
		 GroupLanguagePropertiesSets: [{GroupName: {Text: 'Sub Group'}}],
		 Cookies: [{Name: 'sid', Host: 'example.com'}]}
	], otherKey: true};`)

	session := New().Scrape(context.Background(), testSite, deps)
	if session.Outcome != models.OutcomeSuccess {
		t.Fatalf("Outcome = %v (%s), want SUCCESS", session.Outcome, session.Diagnostic)
	}
	records := session.Records.Records()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	ga := records[0]
	if ga.Name != "_ga" || ga.Domain != "example.com" || ga.Purpose != "Used to distinguish users." {
		t.Errorf("first record = %+v", ga)
	}
	if ga.Labels[0].Category != models.CategoryAdvertising || ga.Labels[0].Name != "Targeting Cookies" {
		t.Errorf("Labels = %+v, want Targeting Cookies / advertising", ga.Labels)
	}

	// The second group names its category through Parent.
	sid := records[1]
	if sid.Name != "sid" || sid.Purpose != "" {
		t.Errorf("second record = %+v", sid)
	}
	if sid.Labels[0].Category != models.CategoryEssential || sid.Labels[0].Name != "Strictly Necessary Cookies" {
		t.Errorf("Labels = %+v, want parent category", sid.Labels)
	}
}

func TestScrapeVariantBZeroCookies(t *testing.T) {
	getter, _, deps := newDeps(consentHTML)
	getter.Responses[testSite] = cmptest.OK("<html></html>")
	getter.Responses[consentJS] = cmptest.OK(`var otBannerSdk = {"cctId": "abc", Groups: [
		{Parent: null, GroupLanguagePropertiesSets: [{GroupName: {Text: 'Necessary'}}], Cookies: []}
	]};`)

	session := New().Scrape(context.Background(), testSite, deps)
	if session.Outcome != models.OutcomeMalformedResponse {
		t.Errorf("Outcome = %v, want MALFORMED_RESPONSE for zero cookies", session.Outcome)
	}
}

func TestScrapeVariantBNoGroupsMarker(t *testing.T) {
	getter, _, deps := newDeps(consentHTML)
	getter.Responses[testSite] = cmptest.OK("<html></html>")
	getter.Responses[consentJS] = cmptest.OK(`var otBannerSdk = {"cctId": "abc"};`)

	session := New().Scrape(context.Background(), testSite, deps)
	if session.Outcome != models.OutcomeParseError {
		t.Errorf("Outcome = %v, want PARSE_ERROR when the Groups array is missing", session.Outcome)
	}
}

func TestScrapeVariantBScriptFetchFailure(t *testing.T) {
	getter, _, deps := newDeps(consentHTML)
	getter.Responses[testSite] = cmptest.OK("<html></html>")
	getter.Responses[consentJS] = cmptest.Fail(models.OutcomeHTTPError, "HTTP error: 404 Not Found")

	session := New().Scrape(context.Background(), testSite, deps)
	if session.Outcome != models.OutcomeHTTPError {
		t.Errorf("Outcome = %v, want HTTP_ERROR from the script fetch", session.Outcome)
	}
}

func TestScrapeVariantBTimeoutWithoutScripts(t *testing.T) {
	getter, _, deps := newDeps("<html><body>plain page</body></html>")
	getter.Responses[testSite] = cmptest.OK("<html></html>")

	session := New().Scrape(context.Background(), testSite, deps)
	if session.Outcome != models.OutcomeConnFailed {
		t.Errorf("Outcome = %v, want CONN_FAILED when no scripts rendered at all", session.Outcome)
	}
}

func TestScrapeVariantBBadGroupShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			"group without Parent field",
			`var x = {"a": 1, Groups: [{GroupLanguagePropertiesSets: [{GroupName: {Text: 'Necessary'}}], Cookies: [{Name: 'sid', Host: 'example.com'}]}]};`,
		},
		{
			"cookie without Host field",
			`var x = {"a": 1, Groups: [{Parent: null, GroupLanguagePropertiesSets: [{GroupName: {Text: 'Necessary'}}], Cookies: [{Name: 'sid'}]}]};`,
		},
		{
			"group without language properties",
			`var x = {"a": 1, Groups: [{Parent: null, Cookies: [{Name: 'sid', Host: 'example.com'}]}]};`,
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			getter, _, deps := newDeps(consentHTML)
			getter.Responses[testSite] = cmptest.OK("<html></html>")
			getter.Responses[consentJS] = cmptest.OK(tt.body)

			session := New().Scrape(context.Background(), testSite, deps)
			if session.Outcome != models.OutcomeParseError {
				t.Errorf("Outcome = %v, want PARSE_ERROR", session.Outcome)
			}
		})
	}
}

func TestScrapeNavigateFailurePropagates(t *testing.T) {
	getter := cmptest.NewGetter()
	pg := &cmptest.Page{
		HTML:      loaderHTML,
		NavResult: &page.NavigateResult{Outcome: models.OutcomeSSLError, Diagnostic: "net::ERR_CERT_AUTHORITY_INVALID"},
	}
	deps := cmp.Deps{Fetch: getter, Page: pg, Debug: debugdump.NopSink{}}
	getter.Responses[testSite] = cmptest.OK("<html></html>")

	session := New().Scrape(context.Background(), testSite, deps)
	if session.Outcome != models.OutcomeSSLError {
		t.Errorf("Outcome = %v, want SSL_ERROR from navigation", session.Outcome)
	}
}

func TestMatchConsentScript(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{consentJS, consentJS},
		{consentJS + "?ver=6.33.0", consentJS},
		{"https://cookiepro.blob.core.windows.net/consent/" + testDD + "-test.js", "https://cookiepro.blob.core.windows.net/consent/" + testDD + "-test.js"},
		{"https://optanon.blob.core.windows.net/consent/" + testDD + ".js", "https://optanon.blob.core.windows.net/consent/" + testDD + ".js"},
		{"https://cookie-cdn.cookiepro.com/consent/" + testDD + ".js", "https://cookie-cdn.cookiepro.com/consent/" + testDD + ".js"},
		{"https://cdn.cookielaw.org/scripttemplates/otSDKStub.js", ""},
		{"https://example.com/consent/" + testDD + ".js", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := matchConsentScript(tc.src); got != tc.want {
			t.Errorf("matchConsentScript(%q) = %q, want %q", tc.src, got, tc.want)
		}
	}
}

func TestRulesetIDsFiltersByLanguage(t *testing.T) {
	getter := cmptest.NewGetter()
	getter.Responses[indexURL] = cmptest.OK(`{"RuleSet": [
		{"Id": "rs-en", "LanguageSwitcherPlaceholder": {"en": "en", "default": "en"}},
		{"Id": "rs-de", "LanguageSwitcherPlaceholder": {"de": "de"}},
		{"Id": "rs-null", "LanguageSwitcherPlaceholder": null}
	]}`)

	ids, outcome, _ := New().rulesetIDs(context.Background(), getter, "https://cdn.cookielaw.org", testDD)
	if outcome != models.OutcomeSuccess {
		t.Fatalf("outcome = %v, want SUCCESS", outcome)
	}
	if len(ids) != 1 || ids[0] != "rs-en" {
		t.Errorf("ids = %v, want [rs-en]", ids)
	}
}
