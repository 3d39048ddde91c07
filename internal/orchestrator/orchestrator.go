package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/keyword-radar/internal/aggregate"
	"github.com/DeafMist/keyword-radar/internal/diff"
	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/metrics"
	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/notify"
	"github.com/DeafMist/keyword-radar/internal/processing"
	"github.com/DeafMist/keyword-radar/internal/querygen"
	"github.com/DeafMist/keyword-radar/internal/store"
)

var (
	// ErrConfiguration marks roots or plans rejected before any query is sent.
	ErrConfiguration = errors.New("configuration error")
	// ErrStorage marks snapshot or diff persistence failures.
	ErrStorage = errors.New("storage error")
	// ErrUnusableRun marks a batch whose success ratio is below the configured minimum.
	ErrUnusableRun = errors.New("unusable run")
)

// Mode selects how roots of one invocation are scheduled.
type Mode string

const (
	ModeSerial   Mode = "serial"
	ModeParallel Mode = "parallel"
)

// ParseMode validates a RUN_MODE value.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeSerial, ModeParallel:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("unknown run mode %q", raw)
	}
}

// Executor runs a query batch. Implemented by *suggest.Executor.
type Executor interface {
	Execute(ctx context.Context, queries []string) ([]models.QueryResult, error)
}

// Config controls one orchestrator.
type Config struct {
	Plan        querygen.Plan
	Mode        Mode
	Parallelism int
	// MinSuccessRatio rejects batches below it; 0 accepts any batch.
	MinSuccessRatio float64
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets the collaborator that receives finished runs.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics records run outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = logger.OrDiscard(log) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator sequences generate, execute, aggregate and diff for each root.
// Roots are isolated: a failure in one never affects another.
type Orchestrator struct {
	exec     Executor
	store    store.Store
	cfg      Config
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// New builds an orchestrator.
func New(exec Executor, st store.Store, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:  exec,
		store: st,
		cfg:   cfg,
		log:   logger.Discard(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = notify.NewLog(o.log)
	}
	return o
}

// Run processes every root and returns the invocation report. Results keep the
// order of roots after duplicates are dropped. Run itself never fails; per-root
// errors are recorded in the report.
func (o *Orchestrator) Run(ctx context.Context, roots []string) models.RunReport {
	report := models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: o.now().UTC(),
	}
	report.Date = models.DateOf(report.StartedAt)
	roots = uniqueRoots(roots)
	report.Results = make([]models.RunSummary, len(roots))

	limit := 1
	if o.cfg.Mode == ModeParallel && o.cfg.Parallelism > 1 {
		limit = o.cfg.Parallelism
	}
	o.log.Info("run started",
		slog.String("run_id", report.RunID),
		slog.String("date", report.Date),
		slog.Int("roots", len(roots)),
		slog.Int("parallelism", limit),
	)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, root := range roots {
		g.Go(func() error {
			report.Results[i] = o.RunRoot(ctx, report.RunID, root, report.Date)
			return nil
		})
	}
	_ = g.Wait()

	report.EndedAt = o.now().UTC()
	completed, failed := report.Counts()
	o.log.Info("run finished",
		slog.String("run_id", report.RunID),
		slog.Int("completed", completed),
		slog.Int("failed", failed),
		slog.Duration("duration", report.EndedAt.Sub(report.StartedAt)),
	)
	if err := o.notifier.NotifyReport(context.WithoutCancel(ctx), report); err != nil {
		o.log.Error("deliver run report", slog.String("run_id", report.RunID), slog.Any("err", err))
	}
	return report
}

// RunRoot drives one root through its state machine and returns the terminal summary.
func (o *Orchestrator) RunRoot(ctx context.Context, runID, root, date string) (summary models.RunSummary) {
	summary = models.RunSummary{
		RunID:     runID,
		Root:      root,
		Date:      date,
		State:     models.StatePending,
		StartedAt: o.now().UTC(),
	}
	log := o.log.With(slog.String("run_id", runID), slog.String("root", root))

	defer func() {
		if r := recover(); r != nil {
			o.fail(&summary, fmt.Errorf("panic: %v", r))
		}
		summary.EndedAt = o.now().UTC()
		o.finish(ctx, log, summary)
	}()

	if err := o.execute(ctx, log, &summary); err != nil {
		o.fail(&summary, err)
	}
	return summary
}

func (o *Orchestrator) execute(ctx context.Context, log *slog.Logger, s *models.RunSummary) error {
	enter := func(state models.RunState) {
		s.State = state
		log.Debug("root state", slog.String("state", string(state)))
	}

	enter(models.StateGenerating)
	root, err := processing.ValidateRoot(s.Root)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if o.cfg.Plan.Empty() {
		return fmt.Errorf("%w: combination plan enables no query class", ErrConfiguration)
	}
	s.Root = root
	queries := querygen.Generate(root, o.cfg.Plan)

	enter(models.StateExecuting)
	started := o.now()
	results, err := o.exec.Execute(ctx, queries)
	if err != nil {
		return fmt.Errorf("execute %d queries: %w", len(queries), err)
	}
	elapsed := o.now().Sub(started)

	enter(models.StateAggregating)
	snap := aggregate.Aggregate(root, s.Date, results, elapsed)
	snap.CreatedAt = o.now().UTC()
	if snap.Stats.SuccessRatio < o.cfg.MinSuccessRatio {
		return fmt.Errorf("%w: success ratio %.2f below %.2f", ErrUnusableRun, snap.Stats.SuccessRatio, o.cfg.MinSuccessRatio)
	}

	enter(models.StateDiffing)
	var previous *models.Snapshot
	prev, err := o.store.MostRecentBefore(ctx, root, s.Date)
	switch {
	case err == nil:
		previous = &prev
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("%w: read previous snapshot: %w", ErrStorage, err)
	}
	d := diff.Compute(snap, previous)
	d.CreatedAt = o.now().UTC()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("before commit: %w", err)
	}
	// The snapshot is written last: once it exists, later runs diff against it.
	if !d.Baseline {
		if err := o.store.PutDiff(ctx, d); err != nil {
			return fmt.Errorf("%w: write diff: %w", ErrStorage, err)
		}
	}
	if err := o.store.Put(ctx, snap); err != nil {
		return fmt.Errorf("%w: write snapshot: %w", ErrStorage, err)
	}
	s.Snapshot = &snap
	s.Partial = snap.Stats.Partial()
	s.Diff = &d

	enter(models.StateCompleted)
	return nil
}

func (o *Orchestrator) fail(s *models.RunSummary, err error) {
	s.FailedAt = s.State
	s.State = models.StateFailed
	s.Err = err
	s.Error = err.Error()
}

func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, s models.RunSummary) {
	o.metrics.ObserveRun(s)

	if s.State == models.StateFailed {
		log.Error("root run failed",
			slog.String("failed_at", string(s.FailedAt)),
			slog.Any("err", s.Err),
		)
	} else {
		attrs := []any{
			slog.Bool("partial", s.Partial),
			slog.Int("unique", s.Snapshot.Stats.UniqueSuggestions),
			slog.Float64("success_ratio", s.Snapshot.Stats.SuccessRatio),
			slog.Bool("baseline", s.Diff.Baseline),
			slog.Int("new", s.Diff.NewCount),
			slog.Int("disappeared", s.Diff.DisappearedCount),
		}
		if s.Partial {
			log.Warn("root run completed with failed queries", attrs...)
		} else {
			log.Info("root run completed", attrs...)
		}
	}

	if err := o.notifier.NotifyRun(context.WithoutCancel(ctx), s); err != nil {
		log.Error("deliver run summary", slog.Any("err", err))
	}
}

// uniqueRoots drops roots that normalize to one already seen. Empty roots are kept
// so that they surface as configuration failures.
func uniqueRoots(roots []string) []string {
	seen := make(map[string]struct{}, len(roots))
	out := make([]string, 0, len(roots))
	for _, raw := range roots {
		key := processing.NormalizeRoot(raw)
		if key != "" {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, raw)
	}
	return out
}
