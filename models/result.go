package models

import "time"

// ScrapeProgress tracks the orchestrator's position in the catalog. It lives only
// for one run and is never persisted.
type ScrapeProgress struct {
	BookIndex           int
	ConsecutiveFailures int
}

// RunResult holds the overall result of one catalog scrape.
type RunResult struct {
	RunID         string
	Genre         string
	StartTime     time.Time
	EndTime       time.Time
	CatalogSize   int
	Done          int
	FreshSkipped  int
	ForcedSkipped int
	RetryCount    int
	PageCount     int
	ReviewCount   int
	SkippedBooks  []string
	ErrorsByType  map[string]int
}
