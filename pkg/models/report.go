package models

import "sync"

// ReportEntry is one recorded site result.
type ReportEntry struct {
	URL        string
	Outcome    CrawlOutcome
	Diagnostic string
}

// CrawlReport aggregates per-outcome counts and per-site results for one
// crawl run. All mutation goes through Record, which is safe for
// concurrent use; reads return copies.
type CrawlReport struct {
	mu      sync.Mutex
	counts  map[CrawlOutcome]int
	entries []ReportEntry
	failed  []string
}

// NewCrawlReport creates a report with zeroed counters for every outcome.
func NewCrawlReport() *CrawlReport {
	counts := make(map[CrawlOutcome]int, len(AllOutcomes()))
	for _, o := range AllOutcomes() {
		counts[o] = 0
	}
	return &CrawlReport{counts: counts}
}

// Record stores the terminal outcome for one site.
func (r *CrawlReport) Record(url string, outcome CrawlOutcome, diagnostic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[outcome]++
	r.entries = append(r.entries, ReportEntry{URL: url, Outcome: outcome, Diagnostic: diagnostic})
	if outcome != OutcomeSuccess {
		r.failed = append(r.failed, url)
	}
}

// Count returns the number of sites that ended with the given outcome.
func (r *CrawlReport) Count(outcome CrawlOutcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[outcome]
}

// Completed returns the total number of recorded sites.
func (r *CrawlReport) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Succeeded returns the number of successful sites.
func (r *CrawlReport) Succeeded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[OutcomeSuccess]
}

// Failed returns the number of failed sites.
func (r *CrawlReport) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed)
}

// FailedURLs returns the failed site URLs in crawl order.
func (r *CrawlReport) FailedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.failed...)
}

// Entries returns every recorded site result in crawl order.
func (r *CrawlReport) Entries() []ReportEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReportEntry(nil), r.entries...)
}
