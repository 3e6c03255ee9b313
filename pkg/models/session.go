package models

import "time"

// CrawlSession holds the result of crawling one website: the records
// collected, exactly one terminal outcome, and an optional diagnostic.
// A session is created at the start of an extractor invocation and
// finalized exactly once before it returns; records are only committed
// by the orchestrator when the outcome is SUCCESS.
type CrawlSession struct {
	SiteURL    string
	Provider   string
	Records    *RecordSet
	Outcome    CrawlOutcome
	Diagnostic string
	StartedAt  time.Time
	FinishedAt time.Time

	finalized bool
}

// NewCrawlSession creates a session for the given site and provider name.
func NewCrawlSession(siteURL, provider string) *CrawlSession {
	return &CrawlSession{
		SiteURL:   siteURL,
		Provider:  provider,
		Records:   NewRecordSet(),
		Outcome:   OutcomeUnknown,
		StartedAt: time.Now(),
	}
}

// Finalize sets the terminal outcome and diagnostic. The first call wins;
// later calls are ignored so every return path can finalize safely.
func (s *CrawlSession) Finalize(outcome CrawlOutcome, diagnostic string) *CrawlSession {
	if s.finalized {
		return s
	}
	s.Outcome = outcome
	s.Diagnostic = diagnostic
	s.FinishedAt = time.Now()
	s.finalized = true
	return s
}

// Finalized reports whether a terminal outcome has been set.
func (s *CrawlSession) Finalized() bool {
	return s.finalized
}

// Success reports whether the session ended in OutcomeSuccess.
func (s *CrawlSession) Success() bool {
	return s.finalized && s.Outcome == OutcomeSuccess
}
