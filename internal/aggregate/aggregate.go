package aggregate

import (
	"math"
	"time"

	"github.com/DeafMist/keyword-radar/internal/dedupe"
	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/processing"
)

// Aggregate merges per-query results into one snapshot for root on date.
// The result depends only on the multiset of results, not on their order.
// Partial failures are recorded in the stats; usability is the caller's decision.
func Aggregate(root, date string, results []models.QueryResult, duration time.Duration) models.Snapshot {
	set := dedupe.NewSet()
	stats := models.SnapshotStats{
		TotalQueries:    len(results),
		DurationSeconds: round2(duration.Seconds()),
	}

	for _, res := range results {
		if !res.Succeeded() {
			stats.FailedQueries++
			if stats.FailuresByKind == nil {
				stats.FailuresByKind = make(map[models.FailureKind]int)
			}
			stats.FailuresByKind[res.Failure.Kind]++
			continue
		}
		stats.SuccessfulQueries++
		for _, raw := range res.Suggestions {
			s := processing.CleanSuggestion(raw)
			if s == "" {
				continue
			}
			stats.TotalSuggestions++
			set.Add(s)
		}
	}

	stats.UniqueSuggestions = set.Len()
	if stats.SuccessfulQueries > 0 {
		stats.AvgSuggestionsPerQuery = round2(float64(stats.TotalSuggestions) / float64(stats.SuccessfulQueries))
	}
	if stats.TotalQueries > 0 {
		stats.SuccessRatio = float64(stats.SuccessfulQueries) / float64(stats.TotalQueries)
	}

	return models.Snapshot{
		Root:        root,
		Date:        date,
		Suggestions: set.Sorted(),
		Stats:       stats,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
