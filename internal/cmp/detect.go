// internal/cmp/detect.go
package cmp

import "strings"

// signatures are markup substrings that betray a platform's loader tag.
// Checked in Providers() order; the first hit wins. A site carrying more
// than one consent library is rare enough that first-match is acceptable.
var signatures = map[Provider][]string{
	ProviderCookiebot: {
		"consent.cookiebot.com",
		"data-cbid",
	},
	ProviderOneTrust: {
		"cdn.cookielaw.org",
		"optanon.blob.core.windows.net",
		"cookie-cdn.cookiepro.com",
		"cookiepro.blob.core.windows.net",
		"data-domain-script",
	},
	ProviderTermly: {
		"app.termly.io",
		"termly-embed-banner",
	},
}

// Detect inspects rendered page markup for a known consent library.
func Detect(markup string) (Provider, bool) {
	for _, provider := range Providers() {
		for _, sig := range signatures[provider] {
			if strings.Contains(markup, sig) {
				return provider, true
			}
		}
	}
	return "", false
}
