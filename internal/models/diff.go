package models

import "time"

// Diff compares two snapshots of the same root. It is never mutated after creation.
type Diff struct {
	Root         string `json:"root"`
	CurrentDate  string `json:"current_date"`
	PreviousDate string `json:"previous_date,omitempty"`
	// Baseline is set when no earlier snapshot existed; the sets are then empty.
	Baseline         bool      `json:"baseline"`
	New              []string  `json:"new_keywords"`
	Disappeared      []string  `json:"disappeared_keywords"`
	NewCount         int       `json:"new_count"`
	DisappearedCount int       `json:"disappeared_count"`
	StableCount      int       `json:"stable_count"`
	TotalCurrent     int       `json:"total_current"`
	TotalPrevious    int       `json:"total_previous"`
	ChangeRate       float64   `json:"change_rate"`
	CreatedAt        time.Time `json:"created_at"`
}
