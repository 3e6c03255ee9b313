package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Config holds one crawl invocation's settings, resolved from defaults,
// CRAWL_* environment variables and CLI flags, in that order.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string // console or json
	LogFile   string // empty means stderr

	// HTTP
	Timeout        time.Duration // whole-request read deadline
	ConnectTimeout time.Duration // dial deadline
	UserAgent      string
	Headers        []string // raw "Key: Value" flag values
	Insecure       bool

	// Per-host rate limiting
	Rate  float64
	Burst int

	// Rendered-page sessions. ScriptWait zero keeps each platform's own
	// script-tag wait.
	PageTimeout time.Duration
	ScriptWait  time.Duration
	Headless    bool
	ChromePath  string

	// Response cache
	CacheEnabled bool
	CacheTTL     time.Duration
	CacheMaxSize int64

	// Crawl run
	Provider      string // auto or a known platform name
	Workers       int
	AssumeHTTP    bool
	OutDir        string // empty means scrape_out_<timestamp>
	DBPath        string // empty means <out-dir>/cookiedat.sqlite
	WriteJSON     bool
	WriteCSV      bool
	WriteMarkdown bool
	DebugDumps    bool

	// Forward proxies
	Proxies      []string
	KeyringProxy bool
}

// Load builds a Config from defaults, environment variables and whatever
// flags the command carries. Callers pass the executing *cobra.Command so
// inherited persistent flags are visible.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := &Config{
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		UserAgent:      DefaultUserAgent,
		Rate:           DefaultRatePerHost,
		Burst:          DefaultBurst,
		PageTimeout:    DefaultPageTimeout,
		Headless:       DefaultBrowserHeadless,
		CacheEnabled:   true,
		CacheTTL:       DefaultCacheTTL,
		CacheMaxSize:   DefaultCacheMaxSizeBytes,
		Provider:       DefaultProvider,
		Workers:        DefaultWorkers,
	}

	loadEnv(cfg)
	if cmd != nil {
		applyFlags(cfg, cmd.Flags())
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("CRAWL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CRAWL_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("CRAWL_PROXY"); v != "" {
		cfg.Proxies = append(cfg.Proxies, v)
	}
	if v := os.Getenv("CRAWL_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := os.Getenv("CRAWL_OUT_DIR"); v != "" {
		cfg.OutDir = v
	}
	if v := os.Getenv("CRAWL_DB"); v != "" {
		cfg.DBPath = v
	}
}

// applyFlags copies explicitly-set flag values over the config. Flags the
// user did not touch keep whatever defaults or environment put there.
func applyFlags(cfg *Config, flags *pflag.FlagSet) {
	setString(flags, "log-level", &cfg.LogLevel)
	setString(flags, "log-format", &cfg.LogFormat)
	setString(flags, "log-file", &cfg.LogFile)
	setDuration(flags, "timeout", &cfg.Timeout)
	setDuration(flags, "connect-timeout", &cfg.ConnectTimeout)
	setDuration(flags, "wait", &cfg.ScriptWait)
	setString(flags, "user-agent", &cfg.UserAgent)
	setStringArray(flags, "header", &cfg.Headers)
	setFloat(flags, "rate", &cfg.Rate)
	setInt(flags, "burst", &cfg.Burst)
	setBool(flags, "insecure", &cfg.Insecure)
	setBool(flags, "cache", &cfg.CacheEnabled)
	setString(flags, "chrome-path", &cfg.ChromePath)
	setBool(flags, "headless", &cfg.Headless)

	setString(flags, "cmp", &cfg.Provider)
	setInt(flags, "workers", &cfg.Workers)
	setBool(flags, "assume-http", &cfg.AssumeHTTP)
	setString(flags, "out-dir", &cfg.OutDir)
	setString(flags, "db", &cfg.DBPath)
	setBool(flags, "json", &cfg.WriteJSON)
	setBool(flags, "csv", &cfg.WriteCSV)
	setBool(flags, "markdown", &cfg.WriteMarkdown)
	setBool(flags, "debug-dumps", &cfg.DebugDumps)
	setStringArray(flags, "proxy", &cfg.Proxies)
	setBool(flags, "keyring-proxy", &cfg.KeyringProxy)

	// The single read deadline also bounds page loads unless it was left
	// at its default.
	if flags.Changed("timeout") {
		cfg.PageTimeout = cfg.Timeout
	}
}

func setString(flags *pflag.FlagSet, name string, dst *string) {
	if flags.Changed(name) {
		if v, err := flags.GetString(name); err == nil {
			*dst = v
		}
	}
}

func setStringArray(flags *pflag.FlagSet, name string, dst *[]string) {
	if flags.Changed(name) {
		if v, err := flags.GetStringArray(name); err == nil {
			*dst = v
		}
	}
}

func setDuration(flags *pflag.FlagSet, name string, dst *time.Duration) {
	if flags.Changed(name) {
		if v, err := flags.GetDuration(name); err == nil {
			*dst = v
		}
	}
}

func setFloat(flags *pflag.FlagSet, name string, dst *float64) {
	if flags.Changed(name) {
		if v, err := flags.GetFloat64(name); err == nil {
			*dst = v
		}
	}
}

func setInt(flags *pflag.FlagSet, name string, dst *int) {
	if flags.Changed(name) {
		if v, err := flags.GetInt(name); err == nil {
			*dst = v
		}
	}
}

func setBool(flags *pflag.FlagSet, name string, dst *bool) {
	if flags.Changed(name) {
		if v, err := flags.GetBool(name); err == nil {
			*dst = v
		}
	}
}
