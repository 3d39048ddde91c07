package diff

import (
	"math"

	"github.com/DeafMist/keyword-radar/internal/dedupe"
	"github.com/DeafMist/keyword-radar/internal/models"
)

// Compute compares current against previous. A nil previous yields a baseline
// diff with empty sets. Membership is exact-string equality.
func Compute(current models.Snapshot, previous *models.Snapshot) models.Diff {
	d := models.Diff{
		Root:         current.Root,
		CurrentDate:  current.Date,
		TotalCurrent: len(current.Suggestions),
		New:          []string{},
		Disappeared:  []string{},
	}
	if previous == nil {
		d.Baseline = true
		return d
	}

	cur := dedupe.NewSet(current.Suggestions...)
	prev := dedupe.NewSet(previous.Suggestions...)

	d.PreviousDate = previous.Date
	d.TotalCurrent = cur.Len()
	d.TotalPrevious = prev.Len()
	d.New = cur.Minus(prev).Sorted()
	d.Disappeared = prev.Minus(cur).Sorted()
	d.NewCount = len(d.New)
	d.DisappearedCount = len(d.Disappeared)
	d.StableCount = cur.IntersectionLen(prev)
	if d.TotalPrevious > 0 {
		rate := float64(d.NewCount-d.DisappearedCount) / float64(d.TotalPrevious) * 100
		d.ChangeRate = math.Round(rate*100) / 100
	}
	return d
}
