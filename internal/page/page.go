// Package page drives the headless browser. One Browser lives for the
// whole crawl; each crawl worker opens its own Session (a browser tab)
// and drives it from site to site.
package page

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/consent-audit/crawl/pkg/models"
)

// BrowserConfig carries the browser boot knobs.
type BrowserConfig struct {
	Headless    bool
	UserAgent   string
	Proxy       string            // optional forward proxy for all tabs
	ExecPath    string            // optional Chrome binary path
	PageTimeout time.Duration     // per-navigation deadline, default 30s
	Headers     map[string]string // extra headers sent on every page request
}

// Browser owns the Chrome process. Boot it once, open a Session per site,
// Close it when the crawl ends.
type Browser struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	pageTimeout   time.Duration
	headers       map[string]string
}

// NewBrowser starts headless Chrome eagerly so boot failures surface here
// rather than on the first site.
func NewBrowser(ctx context.Context, cfg BrowserConfig) (*Browser, error) {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "consent-crawl/1.0 (+https://github.com/consent-audit/crawl)"
	}

	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("safebrowsing-disable-auto-update", true),
		chromedp.UserAgent(cfg.UserAgent),
	}
	if cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(cfg.Proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions forces the browser process to start now.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	log.Debug().Bool("headless", cfg.Headless).Str("proxy", cfg.Proxy).Msg("Browser started")

	return &Browser{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		pageTimeout:   cfg.PageTimeout,
		headers:       cfg.Headers,
	}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// blockedResources are URL patterns no consent extractor reads. Skipping
// them cuts page weight without changing what the script scans see.
var blockedResources = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*.mp4", "*.webm", "*.mp3", "*.avi",
}

// NewSession opens a fresh tab with media blocked and the configured extra
// headers installed. Setup failures degrade to a plain tab.
func (b *Browser) NewSession() *Session {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)

	// Dismiss alert/confirm dialogs as they open; an unanswered dialog
	// blocks every later CDP action on the tab.
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if _, ok := ev.(*cdppage.EventJavascriptDialogOpening); ok {
			go func() {
				_ = chromedp.Run(tabCtx, cdppage.HandleJavaScriptDialog(false))
			}()
		}
	})

	tasks := []chromedp.Action{
		network.Enable(),
		network.SetBlockedURLS(blockedResources),
	}
	if len(b.headers) > 0 {
		extra := make(network.Headers, len(b.headers))
		for k, v := range b.headers {
			extra[k] = v
		}
		tasks = append(tasks, network.SetExtraHTTPHeaders(extra))
	}
	if err := chromedp.Run(tabCtx, tasks...); err != nil {
		log.Warn().Err(err).Msg("Tab setup failed, loading pages without request filters")
	}

	return &Session{
		ctx:     tabCtx,
		cancel:  tabCancel,
		timeout: b.pageTimeout,
	}
}

// Session is a single browser tab. Sessions are not safe for concurrent
// use; each crawl worker holds its own.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// Close discards the tab.
func (s *Session) Close() {
	s.cancel()
}

// NavigateResult classifies a page load.
type NavigateResult struct {
	Outcome    models.CrawlOutcome
	Diagnostic string
}

// OK reports whether extraction can proceed on the loaded page.
func (r *NavigateResult) OK() bool {
	return r.Outcome == models.OutcomeSuccess
}

// Navigate loads a URL in the tab and waits for the load event, up to the
// page timeout. A timed-out load is still usable: the consent scripts the
// extractors look for are injected early, so the result is SUCCESS with a
// diagnostic rather than a failure.
func (s *Session) Navigate(ctx context.Context, url string) *NavigateResult {
	navCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Let first-wave scripts run before anyone reads the DOM.
			time.Sleep(300 * time.Millisecond)
			return nil
		}),
	)
	if err == nil {
		return &NavigateResult{Outcome: models.OutcomeSuccess}
	}
	if navCtx.Err() == context.DeadlineExceeded && s.ctx.Err() == nil {
		log.Warn().Str("url", url).Msg("Page load timeout reached, continuing with partial page")
		return &NavigateResult{
			Outcome:    models.OutcomeSuccess,
			Diagnostic: "page load timed out; extraction ran on a partially loaded page",
		}
	}
	return classifyNavigateError(url, err)
}

// classifyNavigateError maps Chrome net errors onto crawl outcomes.
func classifyNavigateError(url string, err error) *NavigateResult {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "net::ERR_CERT_"), strings.Contains(msg, "net::ERR_SSL_"):
		return &NavigateResult{
			Outcome:    models.OutcomeSSLError,
			Diagnostic: "TLS failure while loading page: " + msg,
		}
	case strings.Contains(msg, "net::ERR_NAME_NOT_RESOLVED"),
		strings.Contains(msg, "net::ERR_NAME_RESOLUTION_FAILED"),
		strings.Contains(msg, "net::ERR_CONNECTION_"),
		strings.Contains(msg, "net::ERR_ADDRESS_UNREACHABLE"),
		strings.Contains(msg, "net::ERR_EMPTY_RESPONSE"),
		strings.Contains(msg, "net::ERR_TOO_MANY_REDIRECTS"),
		strings.Contains(msg, "net::ERR_TIMED_OUT"):
		return &NavigateResult{
			Outcome:    models.OutcomeConnFailed,
			Diagnostic: "failed to reach site: " + msg,
		}
	case strings.Contains(msg, "Cannot navigate to invalid URL"):
		return &NavigateResult{
			Outcome:    models.OutcomeMalformedURL,
			Diagnostic: "browser rejected URL " + url,
		}
	default:
		return &NavigateResult{
			Outcome:    models.OutcomeUnknown,
			Diagnostic: "navigation failed: " + msg,
		}
	}
}

// Markup returns the current outer HTML of the page.
func (s *Session) Markup(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Scripts returns the script elements currently in the DOM, inline and
// external alike.
func (s *Session) Scripts(ctx context.Context) ([]Script, error) {
	html, err := s.Markup(ctx)
	if err != nil {
		return nil, err
	}
	return ParseScripts(html)
}

// WaitScript polls the DOM until a script matching the predicate appears
// or the wait times out. Consent libraries inject their loader tags
// asynchronously, so a single snapshot right after navigation misses them.
func (s *Session) WaitScript(ctx context.Context, wait time.Duration, match func(Script) bool) (Script, bool) {
	deadline := time.Now().Add(wait)
	for {
		scripts, err := s.Scripts(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("Script scan failed during wait")
		}
		for _, sc := range scripts {
			if match(sc) {
				return sc, true
			}
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return Script{}, false
		}
		select {
		case <-ctx.Done():
			return Script{}, false
		case <-time.After(500 * time.Millisecond):
		}
	}
}
