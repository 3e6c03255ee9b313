package config

import "time"

// Defaults follow the crawler's original request profile: a short dial
// deadline so dead hosts fail fast, a generous read deadline for slow
// consent CDNs, and a polite per-host rate.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	// DefaultUserAgent is a current desktop Chrome. Consent CDNs serve
	// bot-labelled clients differently, so the crawler blends in.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

	DefaultTimeout        = 30 * time.Second
	DefaultConnectTimeout = 6 * time.Second
	DefaultPageTimeout    = 30 * time.Second

	DefaultRatePerHost = 2.0
	DefaultBurst       = 4

	DefaultWorkers = 1

	DefaultCacheTTL          = 15 * time.Minute
	DefaultCacheMaxSizeBytes = 100 * 1024 * 1024 // 100MB

	DefaultBrowserHeadless = true

	// DefaultProvider selects per-site detection from rendered markup.
	DefaultProvider = "auto"
)
