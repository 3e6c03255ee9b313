package config

import "github.com/spf13/cobra"

// RegisterGlobalFlags attaches the flags every subcommand shares to the
// root command. Load reads them back by name, so the names here are the
// single source of truth.
func RegisterGlobalFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	pf := cmd.PersistentFlags()
	pf.Duration("timeout", DefaultTimeout, "Read deadline for HTTP requests and page loads")
	pf.Duration("connect-timeout", DefaultConnectTimeout, "Dial deadline for HTTP connections")
	pf.Duration("wait", 0, "Override how long to wait for consent script tags (0 = per-platform default)")
	pf.String("log-level", DefaultLogLevel, "Log level: trace, debug, info, warn, error")
	pf.String("log-file", "", "Write logs to this file instead of stderr")
	pf.String("log-format", DefaultLogFormat, "Log format: console or json")
	pf.String("user-agent", DefaultUserAgent, "User-Agent for HTTP requests and the browser")
	pf.StringArray("header", nil, `Extra request header in "Key: Value" form (repeatable)`)
	pf.Float64("rate", DefaultRatePerHost, "Requests per second per host")
	pf.Int("burst", DefaultBurst, "Rate limiter burst per host")
	pf.Bool("insecure", false, "Skip TLS certificate verification")
	pf.Bool("cache", true, "Cache consent CDN responses in memory (--cache=false disables)")
	pf.String("chrome-path", "", "Chrome binary to launch (default: lookup on PATH)")
	pf.Bool("headless", DefaultBrowserHeadless, "Run the browser headless")
}

// RegisterRunFlags attaches the crawl-run flags.
func RegisterRunFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	f := cmd.Flags()
	f.String("cmp", DefaultProvider, "Consent platform: cookiebot, onetrust, termly or auto")
	f.Int("workers", DefaultWorkers, "Concurrent crawl workers, each with its own browser tab")
	f.Bool("assume-http", false, "Prefix scheme-less URL list entries with http:// instead of dropping them")
	f.String("out-dir", "", "Report directory (default scrape_out_<timestamp>)")
	f.String("db", "", "SQLite database path (default <out-dir>/cookiedat.sqlite)")
	f.Bool("json", false, "Also write records.json with every extracted cookie")
	f.Bool("csv", false, "Also write cookies.csv with every extracted cookie")
	f.Bool("markdown", false, "Also write summary.md")
	f.Bool("debug-dumps", false, "Write malformed upstream payloads to the report directory")
	f.StringArray("proxy", nil, "Forward proxy URL (repeatable, rotated per request)")
	f.Bool("keyring-proxy", false, "Use the proxy URL stored in the system keyring")
}

// RegisterSiteFlags attaches the single-site crawl flags.
func RegisterSiteFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	f := cmd.Flags()
	f.String("cmp", DefaultProvider, "Consent platform: cookiebot, onetrust, termly or auto")
	f.Bool("assume-http", false, "Prefix a scheme-less URL with http:// instead of rejecting it")
	f.String("db", "", "Also persist the results to this SQLite database")
	f.StringArray("proxy", nil, "Forward proxy URL (repeatable, rotated per request)")
	f.Bool("keyring-proxy", false, "Use the proxy URL stored in the system keyring")
}
