package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/models"
)

var (
	snapshotSuggestionsDesc = prometheus.NewDesc(
		namespace+"_snapshot_suggestions",
		"Unique suggestions in the latest stored snapshot of a root",
		[]string{"root", "date"},
		nil,
	)
	snapshotSuccessDesc = prometheus.NewDesc(
		namespace+"_snapshot_success_ratio",
		"Query success ratio of the latest stored snapshot of a root",
		[]string{"root", "date"},
		nil,
	)
)

// LatestReader is the slice of the snapshot store the collector needs.
type LatestReader interface {
	Roots(ctx context.Context) ([]string, error)
	Latest(ctx context.Context, root string) (models.Snapshot, error)
}

// SnapshotCollector reads the latest snapshot of every root on each scrape.
type SnapshotCollector struct {
	store   LatestReader
	log     *slog.Logger
	timeout time.Duration
}

// NewSnapshotCollector builds a collector over store.
func NewSnapshotCollector(store LatestReader, log *slog.Logger) *SnapshotCollector {
	return &SnapshotCollector{store: store, log: logger.OrDiscard(log), timeout: 5 * time.Second}
}

// Describe sends the metric descriptors to the channel.
func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- snapshotSuggestionsDesc
	ch <- snapshotSuccessDesc
}

// Collect emits one gauge pair per stored root.
func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	roots, err := c.store.Roots(ctx)
	if err != nil {
		c.log.Error("collect snapshot metrics", slog.Any("err", err))
		return
	}
	for _, root := range roots {
		snap, err := c.store.Latest(ctx, root)
		if err != nil {
			c.log.Warn("collect latest snapshot", slog.String("root", root), slog.Any("err", err))
			continue
		}
		ch <- prometheus.MustNewConstMetric(snapshotSuggestionsDesc, prometheus.GaugeValue,
			float64(snap.Stats.UniqueSuggestions), root, snap.Date)
		ch <- prometheus.MustNewConstMetric(snapshotSuccessDesc, prometheus.GaugeValue,
			snap.Stats.SuccessRatio, root, snap.Date)
	}
}
