package models

import "time"

// RunState is a step of the per-root run state machine.
type RunState string

const (
	StatePending     RunState = "pending"
	StateGenerating  RunState = "generating"
	StateExecuting   RunState = "executing"
	StateAggregating RunState = "aggregating"
	StateDiffing     RunState = "diffing"
	StateCompleted   RunState = "completed"
	StateFailed      RunState = "failed"
)

// Terminal reports whether no further transition can happen.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// RunSummary is the immutable record handed to downstream collaborators for one root.
type RunSummary struct {
	RunID string   `json:"run_id"`
	Root  string   `json:"root"`
	Date  string   `json:"date"`
	State RunState `json:"state"`
	// FailedAt is the step that was active when the run failed.
	FailedAt RunState `json:"failed_at,omitempty"`
	Error    string   `json:"error,omitempty"`
	// Err keeps the wrapped cause for errors.Is checks by in-process callers.
	Err error `json:"-"`
	// Partial flags a completed run whose success ratio is below 100%.
	Partial   bool      `json:"partial"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
	Diff      *Diff     `json:"diff,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Highlights trims the summary for notification payloads: counts and at most n new keywords.
func (s RunSummary) Highlights(n int) RunHighlights {
	h := RunHighlights{
		RunID:    s.RunID,
		Root:     s.Root,
		Date:     s.Date,
		State:    s.State,
		FailedAt: s.FailedAt,
		Error:    s.Error,
		Partial:  s.Partial,
	}
	if s.Snapshot != nil {
		h.UniqueSuggestions = s.Snapshot.Stats.UniqueSuggestions
		h.SuccessRatio = s.Snapshot.Stats.SuccessRatio
	}
	if s.Diff != nil {
		h.Baseline = s.Diff.Baseline
		h.PreviousDate = s.Diff.PreviousDate
		h.NewCount = s.Diff.NewCount
		h.DisappearedCount = s.Diff.DisappearedCount
		top := s.Diff.New
		if n >= 0 && len(top) > n {
			top = top[:n]
		}
		h.TopNew = append([]string(nil), top...)
	}
	return h
}

// RunHighlights is the compact form of a RunSummary.
type RunHighlights struct {
	RunID             string   `json:"run_id"`
	Root              string   `json:"root"`
	Date              string   `json:"date"`
	State             RunState `json:"state"`
	FailedAt          RunState `json:"failed_at,omitempty"`
	Error             string   `json:"error,omitempty"`
	Partial           bool     `json:"partial"`
	Baseline          bool     `json:"baseline"`
	PreviousDate      string   `json:"previous_date,omitempty"`
	UniqueSuggestions int      `json:"unique_suggestions"`
	SuccessRatio      float64  `json:"success_ratio"`
	NewCount          int      `json:"new_count"`
	DisappearedCount  int      `json:"disappeared_count"`
	TopNew            []string `json:"top_new,omitempty"`
}

// RunReport aggregates every root processed by one invocation.
type RunReport struct {
	RunID     string       `json:"run_id"`
	Date      string       `json:"date"`
	Results   []RunSummary `json:"results"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
}

// Counts returns how many roots completed and failed.
func (r RunReport) Counts() (completed, failed int) {
	for _, res := range r.Results {
		if res.State == StateCompleted {
			completed++
		} else {
			failed++
		}
	}
	return completed, failed
}
