package models

import "time"

// DateLayout is the calendar-day format used for snapshot keys.
const DateLayout = "2006-01-02"

// DateOf renders t as a snapshot date in UTC.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a snapshot date.
func ParseDate(raw string) (time.Time, error) {
	return time.Parse(DateLayout, raw)
}

// Snapshot is the deduplicated suggestion set captured for one root on one date.
type Snapshot struct {
	Root        string        `json:"root"`
	Date        string        `json:"date"`
	Suggestions []string      `json:"suggestions"`
	Stats       SnapshotStats `json:"statistics"`
	CreatedAt   time.Time     `json:"created_at"`
}

// SnapshotStats summarises the batch that produced a snapshot.
type SnapshotStats struct {
	TotalQueries           int                 `json:"total_queries"`
	SuccessfulQueries      int                 `json:"successful_queries"`
	FailedQueries          int                 `json:"failed_queries"`
	TotalSuggestions       int                 `json:"total_suggestions"`
	UniqueSuggestions      int                 `json:"unique_suggestions"`
	AvgSuggestionsPerQuery float64             `json:"average_suggestions_per_query"`
	SuccessRatio           float64             `json:"success_ratio"`
	FailuresByKind         map[FailureKind]int `json:"failures_by_kind,omitempty"`
	DurationSeconds        float64             `json:"duration_seconds"`
}

// Partial reports whether some queries failed.
func (s SnapshotStats) Partial() bool {
	return s.SuccessfulQueries < s.TotalQueries
}
