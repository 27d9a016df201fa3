package domain

import "time"

// SessionStatus is the terminal state of a scan cycle.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
	SessionErrored   SessionStatus = "errored"
)

// ScanSession aggregates the counters of one pipeline run.
type ScanSession struct {
	ID                  string
	StartedAt           time.Time
	FinishedAt          time.Time
	Status              SessionStatus
	Error               string
	PagesFetched        int
	FetchFailures       int
	PagesUnrecognized   int
	Extracted           int
	ExtractionErrors    int
	NormalizationErrors int
	New                 int
	Duplicates          int
	Passed              int
	FilteredOut         int
	Notified            int
	NotifyErrors        int
}

// Errored counts every per-listing failure in the session.
func (s ScanSession) Errored() int {
	return s.ExtractionErrors + s.NormalizationErrors + s.NotifyErrors
}

// Broken reports a cycle that fetched nothing usable, as opposed to a quiet day.
func (s ScanSession) Broken() bool {
	return s.PagesFetched == 0 || s.PagesUnrecognized == s.PagesFetched
}

// SourceCount is the number of stored listings for one source.
type SourceCount struct {
	Source string
	Count  int
}

// StatusSummary is the store-level overview printed by the status command.
type StatusSummary struct {
	TotalListings  int
	PassedListings int
	BySource       []SourceCount
	SeenToday      int
	SeenThisWeek   int
	PriceMin       *int
	PriceMax       *int
	PriceAvg       *float64
	Sessions       int
	LastSession    *ScanSession
}
