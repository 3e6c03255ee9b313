// Package cmptest provides canned collaborators for extractor tests: a
// page session backed by a fixed HTML string and an HTTP getter backed by
// a URL-keyed response table.
package cmptest

import (
	"context"
	"time"

	"github.com/consent-audit/crawl/internal/fetch"
	"github.com/consent-audit/crawl/internal/page"
	"github.com/consent-audit/crawl/pkg/models"
)

// Page is a cmp.PageSession serving a fixed document. Waits return
// immediately instead of polling.
type Page struct {
	HTML      string
	NavResult *page.NavigateResult // nil means every Navigate succeeds
	Navigated []string
	MarkupErr error
	Closed    bool
}

func (p *Page) Navigate(_ context.Context, url string) *page.NavigateResult {
	p.Navigated = append(p.Navigated, url)
	if p.NavResult != nil {
		return p.NavResult
	}
	return &page.NavigateResult{Outcome: models.OutcomeSuccess}
}

func (p *Page) Markup(_ context.Context) (string, error) {
	if p.MarkupErr != nil {
		return "", p.MarkupErr
	}
	return p.HTML, nil
}

func (p *Page) Scripts(ctx context.Context) ([]page.Script, error) {
	html, err := p.Markup(ctx)
	if err != nil {
		return nil, err
	}
	return page.ParseScripts(html)
}

func (p *Page) WaitScript(ctx context.Context, _ time.Duration, match func(page.Script) bool) (page.Script, bool) {
	scripts, err := p.Scripts(ctx)
	if err != nil {
		return page.Script{}, false
	}
	for _, s := range scripts {
		if match(s) {
			return s, true
		}
	}
	return page.Script{}, false
}

func (p *Page) Close() { p.Closed = true }

// Request records one Get call.
type Request struct {
	URL      string
	Headers  map[string]string
	Insecure bool
}

// Getter is a cmp.Getter answering from a canned response table. URLs
// with no entry fail with CONN_FAILED, which surfaces quickly in tests.
type Getter struct {
	Responses map[string]*fetch.Result
	Requests  []Request
}

func NewGetter() *Getter {
	return &Getter{Responses: make(map[string]*fetch.Result)}
}

func (g *Getter) Get(_ context.Context, url string, opts fetch.Options) *fetch.Result {
	g.Requests = append(g.Requests, Request{URL: url, Headers: opts.Headers, Insecure: opts.Insecure})
	if res, ok := g.Responses[url]; ok {
		res.URL = url
		return res
	}
	return &fetch.Result{
		URL:        url,
		Outcome:    models.OutcomeConnFailed,
		Diagnostic: "no canned response for " + url,
	}
}

// OK builds a successful 200 response.
func OK(body string) *fetch.Result {
	return &fetch.Result{Status: 200, Body: []byte(body), Outcome: models.OutcomeSuccess}
}

// Fail builds a classified failure.
func Fail(outcome models.CrawlOutcome, diagnostic string) *fetch.Result {
	return &fetch.Result{Outcome: outcome, Diagnostic: diagnostic}
}
