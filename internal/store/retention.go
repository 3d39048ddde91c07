package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/models"
)

// Cutoff returns the first date that survives a retention of days.
func Cutoff(now time.Time, days int) string {
	return models.DateOf(now.AddDate(0, 0, -days))
}

// Purge applies DeleteOlderThan to every root. A failing root is logged and
// skipped; the joined errors are returned after all roots were tried.
func Purge(ctx context.Context, s Store, cutoff string, log *slog.Logger) (int, error) {
	log = logger.OrDiscard(log)
	roots, err := s.Roots(ctx)
	if err != nil {
		return 0, fmt.Errorf("list roots: %w", err)
	}

	total := 0
	var errs []error
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.DeleteOlderThan(ctx, root, cutoff)
		total += n
		if err != nil {
			log.Error("purge root", slog.String("root", root), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("%s: %w", root, err))
		}
	}
	log.Info("retention pass finished",
		slog.String("cutoff", cutoff),
		slog.Int("roots", len(roots)),
		slog.Int("deleted", total),
	)
	return total, errors.Join(errs...)
}
