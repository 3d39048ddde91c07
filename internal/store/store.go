package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/DeafMist/keyword-radar/internal/models"
)

// ErrNotFound is returned when no snapshot or diff matches the lookup.
var ErrNotFound = errors.New("not found")

// Store persists dated snapshots and diffs per keyword root. Writes for the same
// (root, date) overwrite; the last writer wins.
type Store interface {
	Put(ctx context.Context, snap models.Snapshot) error
	Get(ctx context.Context, root, date string) (models.Snapshot, error)
	// MostRecentBefore returns the latest snapshot strictly older than date.
	MostRecentBefore(ctx context.Context, root, date string) (models.Snapshot, error)
	Latest(ctx context.Context, root string) (models.Snapshot, error)
	// ListDates returns snapshot dates in ascending order.
	ListDates(ctx context.Context, root string) ([]string, error)
	// DeleteOlderThan removes snapshots (and their diffs) dated before cutoff,
	// except the most recent snapshot of the root. It returns the snapshots removed.
	DeleteOlderThan(ctx context.Context, root, cutoff string) (int, error)
	Roots(ctx context.Context) ([]string, error)

	PutDiff(ctx context.Context, d models.Diff) error
	GetDiff(ctx context.Context, root, date string) (models.Diff, error)

	Close() error
}

// CheckKey validates a (root, date) pair before it is used as a storage key.
func CheckKey(root, date string) error {
	if root == "" {
		return errors.New("empty root")
	}
	if _, err := models.ParseDate(date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	return nil
}

// Expired picks the dates older than cutoff that retention may remove. dates must
// be ascending. The newest date is never returned.
func Expired(dates []string, cutoff string) []string {
	if len(dates) == 0 {
		return nil
	}
	keep := len(dates) - 1
	n := sort.SearchStrings(dates[:keep], cutoff)
	return dates[:n]
}

// Before returns the newest date in ascending dates that is strictly before date.
func Before(dates []string, date string) (string, bool) {
	i := sort.SearchStrings(dates, date)
	if i == 0 {
		return "", false
	}
	return dates[i-1], true
}
