// Package crawler drives a crawl run: it feeds the site list to one or
// more workers, hands each site to the right extractor, aggregates the
// outcomes into a CrawlReport and commits successful sessions to storage.
package crawler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/consent-audit/crawl/internal/cmp"
	"github.com/consent-audit/crawl/internal/cmp/cookiebot"
	"github.com/consent-audit/crawl/internal/cmp/onetrust"
	"github.com/consent-audit/crawl/internal/cmp/termly"
	"github.com/consent-audit/crawl/internal/debugdump"
	"github.com/consent-audit/crawl/internal/reqctx"
	"github.com/consent-audit/crawl/internal/storage"
	"github.com/consent-audit/crawl/pkg/models"
)

// SessionFactory hands out a fresh rendered-page session. Each worker
// calls it once and keeps the session for all its sites.
type SessionFactory func() cmp.PageSession

// Config controls one crawl run.
type Config struct {
	// Provider pins every site to one extractor. Empty means detect the
	// platform per site from the rendered markup.
	Provider cmp.Provider
	// Workers is the number of concurrent crawl workers; values below 1
	// mean sequential.
	Workers int
	// Wait overrides the extractors' script-tag waits when positive.
	Wait time.Duration
	// Progress receives the progress bar rendering; nil disables it.
	Progress io.Writer
}

// Result is what a finished (or cancelled) run leaves behind.
type Result struct {
	Report    *models.CrawlReport
	Records   []*models.CookieRecord
	Uncrawled []string
}

// Crawler owns the shared crawl infrastructure. The fetch client is safe
// for concurrent use and shared; page sessions are per worker.
type Crawler struct {
	fetch      cmp.Getter
	sessions   SessionFactory
	store      *storage.Store
	debug      debugdump.Sink
	extractors map[cmp.Provider]cmp.Extractor
	cfg        Config
	logger     zerolog.Logger

	// mu serializes report updates and storage commits across workers.
	mu        sync.Mutex
	report    *models.CrawlReport
	collected []*models.CookieRecord
	uncrawled []string
}

// DefaultExtractors returns the production extractor set, in detection
// order.
func DefaultExtractors() []cmp.Extractor {
	return []cmp.Extractor{cookiebot.New(), onetrust.New(), termly.New()}
}

// New builds a crawler. store may be nil when nothing should be
// persisted (single-site table output).
func New(fetch cmp.Getter, sessions SessionFactory, store *storage.Store, debug debugdump.Sink, extractors []cmp.Extractor, cfg Config, logger zerolog.Logger) (*Crawler, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if debug == nil {
		debug = debugdump.NopSink{}
	}

	registry := make(map[cmp.Provider]cmp.Extractor, len(extractors))
	for _, e := range extractors {
		registry[e.Provider()] = e
	}
	if cfg.Provider != "" {
		if _, ok := registry[cfg.Provider]; !ok {
			return nil, fmt.Errorf("no extractor registered for provider %q", cfg.Provider)
		}
	}

	return &Crawler{
		fetch:      fetch,
		sessions:   sessions,
		store:      store,
		debug:      debug,
		extractors: registry,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

type job struct {
	seq  int
	site string
}

// Run crawls the site list. Cancellation stops the run between sites:
// everything already recorded is kept, the rest of the list comes back
// in Result.Uncrawled.
func (c *Crawler) Run(ctx context.Context, sites []string) *Result {
	total := len(sites)
	c.report = models.NewCrawlReport()
	c.collected = nil
	c.uncrawled = nil

	bar := c.newProgressBar(total)

	jobs := make(chan job)
	go func() {
		defer close(jobs)
		for i, site := range sites {
			select {
			case jobs <- job{seq: i + 1, site: site}:
			case <-ctx.Done():
				c.mu.Lock()
				c.uncrawled = append(c.uncrawled, sites[i:]...)
				c.mu.Unlock()
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, jobs, total, bar)
		}()
	}
	wg.Wait()
	_ = bar.Finish()

	if len(c.uncrawled) > 0 {
		c.logger.Warn().Int("remaining", len(c.uncrawled)).Msg("Run stopped before the site list was exhausted")
	}
	return &Result{Report: c.report, Records: c.collected, Uncrawled: c.uncrawled}
}

func (c *Crawler) worker(ctx context.Context, jobs <-chan job, total int, bar *progressbar.ProgressBar) {
	pg := c.sessions()
	defer pg.Close()

	for j := range jobs {
		if ctx.Err() != nil {
			c.mu.Lock()
			c.uncrawled = append(c.uncrawled, j.site)
			c.mu.Unlock()
			continue
		}

		session := c.crawlSite(ctx, j, pg)

		// A failure produced while the run is being cancelled is most
		// likely the cancellation itself; leave the site for a rerun.
		if ctx.Err() != nil && session.Outcome != models.OutcomeSuccess {
			c.mu.Lock()
			c.uncrawled = append(c.uncrawled, j.site)
			c.mu.Unlock()
			continue
		}

		c.record(ctx, session)
		_ = bar.Add(1)
		c.logger.Info().
			Str("site", j.site).
			Stringer("outcome", session.Outcome).
			Msgf("%d/%d completed", c.report.Completed(), total)
	}
}

func (c *Crawler) crawlSite(ctx context.Context, j job, pg cmp.PageSession) *models.CrawlSession {
	providerName := string(c.cfg.Provider)
	if providerName == "" {
		providerName = "auto"
	}
	ctx = reqctx.WithCrawlContext(ctx, j.site, providerName, j.seq)
	logger := reqctx.Logger(ctx, c.logger)

	extractor, failed := c.selectExtractor(ctx, j.site, pg, logger)
	if failed != nil {
		return failed
	}

	logger.Debug().Str("extractor", string(extractor.Provider())).Msg("Starting extraction")
	return extractor.Scrape(ctx, j.site, cmp.Deps{Fetch: c.fetch, Page: pg, Debug: c.debug, Wait: c.cfg.Wait})
}

// selectExtractor resolves which extractor handles the site. With a
// pinned provider this is a lookup; in auto mode the page is rendered
// once and the markup matched against the provider signatures.
func (c *Crawler) selectExtractor(ctx context.Context, site string, pg cmp.PageSession, logger zerolog.Logger) (cmp.Extractor, *models.CrawlSession) {
	if c.cfg.Provider != "" {
		return c.extractors[c.cfg.Provider], nil
	}

	session := models.NewCrawlSession(site, "auto")
	nav := pg.Navigate(ctx, site)
	if !nav.OK() {
		return nil, session.Finalize(nav.Outcome, nav.Diagnostic)
	}
	markup, err := pg.Markup(ctx)
	if err != nil {
		return nil, session.Finalize(models.OutcomeUnknown, fmt.Sprintf("failed to read rendered markup: %v", err))
	}

	provider, ok := cmp.Detect(markup)
	if !ok {
		return nil, session.Finalize(models.OutcomeCMPNotFound, "no supported consent platform detected on "+site)
	}
	extractor, ok := c.extractors[provider]
	if !ok {
		return nil, session.Finalize(models.OutcomeCMPNotFound, fmt.Sprintf("detected %s but no extractor is registered for it", provider))
	}

	logger.Info().Str("provider", string(provider)).Msg("Detected consent platform")
	return extractor, nil
}

// record stores the terminal outcome and, on success, commits the
// session's records. Persistence uses a detached context so a cancelled
// run can still flush what it collected.
func (c *Crawler) record(ctx context.Context, session *models.CrawlSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.report.Record(session.SiteURL, session.Outcome, session.Diagnostic)

	flushCtx := context.WithoutCancel(ctx)
	if session.Outcome == models.OutcomeSuccess {
		records := session.Records.Records()
		c.collected = append(c.collected, records...)
		if c.store != nil {
			if err := c.store.CommitRecords(flushCtx, records); err != nil {
				c.logger.Error().Err(err).Str("site", session.SiteURL).Msg("Failed to persist cookie records")
			}
		}
	}
	if c.store != nil {
		if err := c.store.RecordResult(flushCtx, session); err != nil {
			c.logger.Error().Err(err).Str("site", session.SiteURL).Msg("Failed to persist crawl result")
		}
	}
}

func (c *Crawler) newProgressBar(total int) *progressbar.ProgressBar {
	out := c.cfg.Progress
	if out == nil {
		out = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
	)
}
