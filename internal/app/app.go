// Package app wires one crawl invocation together: logger, response
// cache, rate limiter, HTTP client, headless browser and storage, all
// built from a single Config and torn down in reverse order.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/consent-audit/crawl/internal/cache"
	"github.com/consent-audit/crawl/internal/cmp"
	"github.com/consent-audit/crawl/internal/config"
	"github.com/consent-audit/crawl/internal/fetch"
	"github.com/consent-audit/crawl/internal/page"
	"github.com/consent-audit/crawl/internal/proxy"
	"github.com/consent-audit/crawl/internal/ratelimit"
	"github.com/consent-audit/crawl/internal/retry"
	"github.com/consent-audit/crawl/internal/storage"
	"github.com/consent-audit/crawl/internal/utils/headers"
)

// Application holds the shared crawl infrastructure. It is created once
// per CLI invocation; the browser and the store are opened on demand so
// commands that need neither (outcomes, proxy) stay cheap.
type Application struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Cache   cache.Cache
	Proxies *proxy.Pool
	Limiter ratelimit.RateLimiter
	Fetch   *fetch.Client
	Browser *page.Browser  // nil until StartBrowser
	Store   *storage.Store // nil until OpenStore

	logFile   *os.File
	startTime time.Time
}

// New builds the application. The returned Application owns every
// resource it creates; call Close when the command finishes.
func New(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger, logFile, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	proxies, err := buildProxyPool(cfg)
	if err != nil {
		closeQuiet(logFile)
		return nil, err
	}

	var memCache cache.Cache
	if cfg.CacheEnabled {
		memCache = cache.NewMemoryCache(cfg.CacheMaxSize)
	}

	limiter := ratelimit.NewDomainLimiter(cfg.Rate, cfg.Burst)

	fetchClient, err := fetch.NewClient(fetch.Config{
		Timeout:        cfg.Timeout,
		ConnectTimeout: cfg.ConnectTimeout,
		UserAgent:      cfg.UserAgent,
		Insecure:       cfg.Insecure,
		Headers:        headers.ParseHeaders(cfg.Headers),
		Proxies:        proxies,
		Limiter:        limiter,
		Cache:          memCache,
		CacheTTL:       cfg.CacheTTL,
	})
	if err != nil {
		if memCache != nil {
			memCache.Close()
		}
		closeQuiet(logFile)
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	logger.Debug().
		Float64("rate", cfg.Rate).
		Int("burst", cfg.Burst).
		Bool("cache", cfg.CacheEnabled).
		Int("proxies", proxies.Size()).
		Msg("Application wired")

	return &Application{
		Config:    cfg,
		Logger:    logger,
		Cache:     memCache,
		Proxies:   proxies,
		Limiter:   limiter,
		Fetch:     fetchClient,
		logFile:   logFile,
		startTime: time.Now(),
	}, nil
}

// newLogger builds the run logger and installs it as the process-global
// zerolog logger so library-level log calls land in the same place.
func newLogger(cfg *config.Config) (zerolog.Logger, *os.File, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var out io.Writer = os.Stderr
	var logFile *os.File
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		logFile = f
	}
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: logFile != nil}
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(level)
	zerolog.SetGlobalLevel(level)
	log.Logger = logger
	return logger, logFile, nil
}

// buildProxyPool merges the proxy flags with the keyring-stored proxy
// when requested.
func buildProxyPool(cfg *config.Config) (*proxy.Pool, error) {
	urls := append([]string(nil), cfg.Proxies...)
	if cfg.KeyringProxy {
		stored, err := proxy.Load()
		if err != nil {
			if errors.Is(err, proxy.ErrNotConfigured) {
				return nil, fmt.Errorf("no proxy stored; run \"crawl proxy set\" first")
			}
			return nil, fmt.Errorf("failed to load stored proxy: %w", err)
		}
		urls = append(urls, stored)
	}
	return proxy.NewPool(urls), nil
}

// StartBrowser boots headless Chrome. Boot is the one retried operation
// in the crawler: it is resource setup, and a second attempt regularly
// succeeds where a cold container start failed.
func (a *Application) StartBrowser(ctx context.Context) error {
	if a.Browser != nil {
		return nil
	}

	// Chrome cannot rotate proxies mid-session, so the browser takes the
	// pool's first proxy for the whole run.
	browserProxy := a.Proxies.First()

	boot := func() error {
		b, err := page.NewBrowser(ctx, page.BrowserConfig{
			Headless:    a.Config.Headless,
			UserAgent:   a.Config.UserAgent,
			Proxy:       browserProxy,
			ExecPath:    a.Config.ChromePath,
			PageTimeout: a.Config.PageTimeout,
			Headers:     headers.ParseHeaders(a.Config.Headers),
		})
		if err != nil {
			return err
		}
		a.Browser = b
		return nil
	}
	if err := retry.WithRetry(ctx, retry.DefaultConfig(), boot); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	a.Logger.Debug().Bool("headless", a.Config.Headless).Str("proxy", browserProxy).Msg("Browser ready")
	return nil
}

// Sessions returns a factory handing each crawl worker its own tab.
// StartBrowser must have succeeded first.
func (a *Application) Sessions() func() cmp.PageSession {
	return func() cmp.PageSession { return a.Browser.NewSession() }
}

// OpenStore opens (or creates) the SQLite database at path.
func (a *Application) OpenStore(path string) error {
	store, err := storage.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", path, err)
	}
	a.Store = store
	a.Logger.Debug().Str("path", path).Msg("Database ready")
	return nil
}

// ResolveOutDir returns the report directory for this run. Without an
// explicit --out-dir every run gets its own timestamped directory.
func (a *Application) ResolveOutDir() string {
	if a.Config.OutDir != "" {
		return a.Config.OutDir
	}
	return "scrape_out_" + a.startTime.Format("20060102_150405")
}

// Close tears the application down in reverse construction order. Safe
// to call once regardless of how far New and the on-demand opens got.
func (a *Application) Close() {
	if a.Browser != nil {
		a.Browser.Close()
		a.Browser = nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing database")
		}
		a.Store = nil
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	a.Logger.Debug().Dur("uptime", time.Since(a.startTime)).Msg("Shutdown complete")
	if a.logFile != nil {
		closeQuiet(a.logFile)
		a.logFile = nil
	}
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}

func closeQuiet(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}
