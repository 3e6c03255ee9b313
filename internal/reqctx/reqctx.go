package reqctx

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type key int

const crawlKey key = 0

// CrawlContext identifies one site crawl within a run. It travels down
// through the fetcher, the page session and the extractor so log lines can
// be correlated per site.
type CrawlContext struct {
	Site      string
	Provider  string
	Seq       int // 1-based position in the run
	StartTime time.Time
}

func WithCrawlContext(ctx context.Context, site, provider string, seq int) context.Context {
	return context.WithValue(ctx, crawlKey, &CrawlContext{
		Site:      site,
		Provider:  provider,
		Seq:       seq,
		StartTime: time.Now(),
	})
}

func GetCrawlContext(ctx context.Context) *CrawlContext {
	if cc, ok := ctx.Value(crawlKey).(*CrawlContext); ok {
		return cc
	}
	return &CrawlContext{
		Site:      "unknown",
		StartTime: time.Now(),
	}
}

// Logger returns base enriched with the crawl-context fields.
func Logger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	cc := GetCrawlContext(ctx)
	lc := base.With().Str("site", cc.Site)
	if cc.Provider != "" {
		lc = lc.Str("provider", cc.Provider)
	}
	if cc.Seq > 0 {
		lc = lc.Int("seq", cc.Seq)
	}
	return lc.Logger()
}

// SiteError wraps an error with the site it occurred on
type SiteError struct {
	Site string
	Err  error
}

// Error implements the error interface
func (e *SiteError) Error() string {
	return fmt.Sprintf("[%s] %v", e.Site, e.Err)
}

// Unwrap returns the underlying error
func (e *SiteError) Unwrap() error {
	return e.Err
}

// NewSiteError creates a new SiteError from context
func NewSiteError(ctx context.Context, err error) error {
	cc := GetCrawlContext(ctx)
	return &SiteError{
		Site: cc.Site,
		Err:  err,
	}
}
