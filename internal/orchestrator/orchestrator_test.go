package orchestrator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/orchestrator"
	"github.com/DeafMist/keyword-radar/internal/querygen"
	"github.com/DeafMist/keyword-radar/internal/store"
)

// fakeExecutor answers every query of a root with the same suggestion set.
type fakeExecutor struct {
	mu      sync.Mutex
	answers map[string][]string
	failAll bool
	err     error
	panicOn string
	batches map[string]int
}

func (f *fakeExecutor) Execute(ctx context.Context, queries []string) ([]models.QueryResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	root := queries[0]
	if root == f.panicOn {
		panic("executor exploded")
	}
	f.mu.Lock()
	if f.batches == nil {
		f.batches = map[string]int{}
	}
	f.batches[root] = len(queries)
	f.mu.Unlock()

	results := make([]models.QueryResult, 0, len(queries))
	for _, q := range queries {
		if f.failAll {
			results = append(results, models.QueryResult{Query: q, Attempts: 4, Failure: &models.QueryFailure{Kind: models.FailureStatus}})
			continue
		}
		results = append(results, models.QueryResult{Query: q, Attempts: 1, Suggestions: f.answers[root]})
	}
	return results, nil
}

// flakyStore fails writes or reads for selected roots.
type flakyStore struct {
	store.Store
	failPut  string
	failRead string
	failDiff string
}

func (s *flakyStore) Put(ctx context.Context, snap models.Snapshot) error {
	if snap.Root == s.failPut {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, snap)
}

func (s *flakyStore) PutDiff(ctx context.Context, d models.Diff) error {
	if d.Root == s.failDiff {
		return errors.New("diff index closed")
	}
	return s.Store.PutDiff(ctx, d)
}

func (s *flakyStore) MostRecentBefore(ctx context.Context, root, date string) (models.Snapshot, error) {
	if root == s.failRead {
		return models.Snapshot{}, errors.New("io error")
	}
	return s.Store.MostRecentBefore(ctx, root, date)
}

type recordingNotifier struct {
	mu      sync.Mutex
	runs    []models.RunSummary
	reports []models.RunReport
}

func (n *recordingNotifier) NotifyRun(_ context.Context, s models.RunSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, s)
	return nil
}

func (n *recordingNotifier) NotifyReport(_ context.Context, r models.RunReport) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, r)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func clockAt(day string) func() time.Time {
	ts, _ := time.Parse(models.DateLayout, day)
	return func() time.Time { return ts.Add(6 * time.Hour) }
}

func TestRunBaselineThenDiff(t *testing.T) {
	st := newStore(t)
	exec := &fakeExecutor{answers: map[string][]string{
		"ai generate": {"ai generate logo", "ai generate text"},
	}}
	cfg := orchestrator.Config{Plan: querygen.Plan{Bare: true, SingleSuffix: true}, Mode: orchestrator.ModeSerial}

	first := orchestrator.New(exec, st, cfg, orchestrator.WithClock(clockAt("2024-03-01"))).
		Run(context.Background(), []string{"ai generate"})
	require.Len(t, first.Results, 1)
	base := first.Results[0]
	require.Equal(t, models.StateCompleted, base.State)
	require.True(t, base.Diff.Baseline)
	require.Equal(t, 27, exec.batches["ai generate"])
	_, err := st.GetDiff(context.Background(), "ai generate", "2024-03-01")
	require.ErrorIs(t, err, store.ErrNotFound)

	exec.answers["ai generate"] = []string{"ai generate logo", "ai generate excel sheet"}
	second := orchestrator.New(exec, st, cfg, orchestrator.WithClock(clockAt("2024-03-02"))).
		Run(context.Background(), []string{"ai generate"})
	res := second.Results[0]
	require.Equal(t, models.StateCompleted, res.State)
	require.False(t, res.Partial)
	require.Equal(t, "2024-03-02", res.Date)
	require.Equal(t, []string{"ai generate excel sheet"}, res.Diff.New)
	require.Equal(t, []string{"ai generate text"}, res.Diff.Disappeared)
	require.Equal(t, "2024-03-01", res.Diff.PreviousDate)

	stored, err := st.GetDiff(context.Background(), "ai generate", "2024-03-02")
	require.NoError(t, err)
	require.Equal(t, res.Diff.New, stored.New)
	snap, err := st.Get(context.Background(), "ai generate", "2024-03-02")
	require.NoError(t, err)
	require.Equal(t, 27, snap.Stats.TotalQueries)
}

func TestRunIsolatesFailingRoot(t *testing.T) {
	base := newStore(t)
	st := &flakyStore{Store: base, failPut: "broken"}
	exec := &fakeExecutor{answers: map[string][]string{
		"alpha":  {"alpha one"},
		"broken": {"broken one"},
		"gamma":  {"gamma one"},
	}}
	notifier := &recordingNotifier{}
	cfg := orchestrator.Config{Plan: querygen.Plan{Bare: true}, Mode: orchestrator.ModeParallel, Parallelism: 3}

	report := orchestrator.New(exec, st, cfg,
		orchestrator.WithClock(clockAt("2024-03-02")),
		orchestrator.WithNotifier(notifier),
	).Run(context.Background(), []string{"alpha", "broken", "gamma"})

	require.Len(t, report.Results, 3)
	require.Equal(t, "alpha", report.Results[0].Root)
	require.Equal(t, models.StateCompleted, report.Results[0].State)
	require.Equal(t, models.StateCompleted, report.Results[2].State)
	require.NotNil(t, report.Results[2].Diff)

	failed := report.Results[1]
	require.Equal(t, models.StateFailed, failed.State)
	require.Equal(t, models.StateDiffing, failed.FailedAt)
	require.ErrorIs(t, failed.Err, orchestrator.ErrStorage)
	require.Contains(t, failed.Error, "disk full")

	completed, failedCount := report.Counts()
	require.Equal(t, 2, completed)
	require.Equal(t, 1, failedCount)

	require.Len(t, notifier.runs, 3)
	require.Len(t, notifier.reports, 1)
	require.Equal(t, report.RunID, notifier.reports[0].RunID)

	roots, err := base.Roots(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "gamma"}, roots)
}

func TestRunFailures(t *testing.T) {
	cases := []struct {
		name     string
		root     string
		cfg      orchestrator.Config
		exec     *fakeExecutor
		wrap     func(store.Store) store.Store
		seed     []models.Snapshot
		failedAt models.RunState
		target   error
	}{
		{
			name:     "invalid root",
			root:     `ai "generate"`,
			cfg:      orchestrator.Config{Plan: querygen.FullPlan()},
			exec:     &fakeExecutor{},
			failedAt: models.StateGenerating,
			target:   orchestrator.ErrConfiguration,
		},
		{
			name:     "empty root",
			root:     "   ",
			cfg:      orchestrator.Config{Plan: querygen.FullPlan()},
			exec:     &fakeExecutor{},
			failedAt: models.StateGenerating,
			target:   orchestrator.ErrConfiguration,
		},
		{
			name:     "empty plan",
			root:     "ai generate",
			cfg:      orchestrator.Config{},
			exec:     &fakeExecutor{},
			failedAt: models.StateGenerating,
			target:   orchestrator.ErrConfiguration,
		},
		{
			name:     "executor canceled",
			root:     "ai generate",
			cfg:      orchestrator.Config{Plan: querygen.Plan{Bare: true}},
			exec:     &fakeExecutor{err: context.Canceled},
			failedAt: models.StateExecuting,
			target:   context.Canceled,
		},
		{
			name:     "below min success ratio",
			root:     "ai generate",
			cfg:      orchestrator.Config{Plan: querygen.Plan{Bare: true, SinglePrefix: true}, MinSuccessRatio: 0.5},
			exec:     &fakeExecutor{failAll: true},
			failedAt: models.StateAggregating,
			target:   orchestrator.ErrUnusableRun,
		},
		{
			name:     "previous snapshot unreadable",
			root:     "ai generate",
			cfg:      orchestrator.Config{Plan: querygen.Plan{Bare: true}},
			exec:     &fakeExecutor{answers: map[string][]string{"ai generate": {"x"}}},
			wrap:     func(s store.Store) store.Store { return &flakyStore{Store: s, failRead: "ai generate"} },
			failedAt: models.StateDiffing,
			target:   orchestrator.ErrStorage,
		},
		{
			name:     "diff write fails",
			root:     "ai generate",
			cfg:      orchestrator.Config{Plan: querygen.Plan{Bare: true}},
			exec:     &fakeExecutor{answers: map[string][]string{"ai generate": {"x"}}},
			wrap:     func(s store.Store) store.Store { return &flakyStore{Store: s, failDiff: "ai generate"} },
			seed:     []models.Snapshot{{Root: "ai generate", Date: "2024-03-01", Suggestions: []string{"old"}}},
			failedAt: models.StateDiffing,
			target:   orchestrator.ErrStorage,
		},
		{
			name:     "snapshot write fails",
			root:     "ai generate",
			cfg:      orchestrator.Config{Plan: querygen.Plan{Bare: true}},
			exec:     &fakeExecutor{answers: map[string][]string{"ai generate": {"x"}}},
			wrap:     func(s store.Store) store.Store { return &flakyStore{Store: s, failPut: "ai generate"} },
			failedAt: models.StateDiffing,
			target:   orchestrator.ErrStorage,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newStore(t)
			for _, snap := range tc.seed {
				require.NoError(t, st.Put(context.Background(), snap))
			}
			if tc.wrap != nil {
				st = tc.wrap(st)
			}
			o := orchestrator.New(tc.exec, st, tc.cfg, orchestrator.WithClock(clockAt("2024-03-02")))
			res := o.RunRoot(context.Background(), "run-1", tc.root, "2024-03-02")

			require.Equal(t, models.StateFailed, res.State)
			require.Equal(t, tc.failedAt, res.FailedAt)
			require.ErrorIs(t, res.Err, tc.target)
			require.NotEmpty(t, res.Error)
			require.False(t, res.EndedAt.IsZero())

			if len(tc.seed) == 0 {
				roots, err := st.Roots(context.Background())
				require.NoError(t, err)
				require.Empty(t, roots, "a failed run commits nothing")
				return
			}
			_, err := st.Get(context.Background(), tc.root, "2024-03-02")
			require.ErrorIs(t, err, store.ErrNotFound, "a failed run leaves no snapshot to diff against")
			prev, err := st.MostRecentBefore(context.Background(), tc.root, "2024-03-03")
			require.NoError(t, err)
			require.Equal(t, "2024-03-01", prev.Date)
		})
	}
}

func TestRunPartialFailuresStillCommit(t *testing.T) {
	st := newStore(t)
	exec := &partialExecutor{}
	cfg := orchestrator.Config{Plan: querygen.Plan{Bare: true, SingleSuffix: true}}

	res := orchestrator.New(exec, st, cfg, orchestrator.WithClock(clockAt("2024-03-02"))).
		RunRoot(context.Background(), "run-1", "ai generate", "2024-03-02")
	require.Equal(t, models.StateCompleted, res.State)
	require.True(t, res.Partial)
	require.Less(t, res.Snapshot.Stats.SuccessRatio, 1.0)
	require.Equal(t, []string{"ai generate a"}, res.Snapshot.Suggestions)
}

type partialExecutor struct{}

func (partialExecutor) Execute(_ context.Context, queries []string) ([]models.QueryResult, error) {
	results := make([]models.QueryResult, 0, len(queries))
	for _, q := range queries {
		if strings.HasSuffix(q, " a") {
			results = append(results, models.QueryResult{Query: q, Suggestions: []string{q}, Attempts: 1})
			continue
		}
		results = append(results, models.QueryResult{Query: q, Attempts: 2, Failure: &models.QueryFailure{Kind: models.FailureTimeout}})
	}
	return results, nil
}

func TestRunRecoversPanickingRoot(t *testing.T) {
	st := newStore(t)
	exec := &fakeExecutor{panicOn: "boom", answers: map[string][]string{"calm": {"calm one"}}}
	cfg := orchestrator.Config{Plan: querygen.Plan{Bare: true}, Mode: orchestrator.ModeParallel, Parallelism: 2}

	report := orchestrator.New(exec, st, cfg, orchestrator.WithClock(clockAt("2024-03-02"))).
		Run(context.Background(), []string{"boom", "calm"})
	require.Equal(t, models.StateFailed, report.Results[0].State)
	require.Equal(t, models.StateExecuting, report.Results[0].FailedAt)
	require.Contains(t, report.Results[0].Error, "executor exploded")
	require.Equal(t, models.StateCompleted, report.Results[1].State)
}

func TestRunDropsDuplicateRoots(t *testing.T) {
	exec := &fakeExecutor{answers: map[string][]string{"ai generate": {"x"}}}
	report := orchestrator.New(exec, newStore(t), orchestrator.Config{Plan: querygen.Plan{Bare: true}}).
		Run(context.Background(), []string{"ai generate", "  ai   generate ", ""})

	require.Len(t, report.Results, 2)
	require.Equal(t, models.StateCompleted, report.Results[0].State)
	require.Equal(t, models.StateFailed, report.Results[1].State)
	require.NotEmpty(t, report.RunID)
}

func TestParseMode(t *testing.T) {
	mode, err := orchestrator.ParseMode("parallel")
	require.NoError(t, err)
	require.Equal(t, orchestrator.ModeParallel, mode)

	_, err = orchestrator.ParseMode("turbo")
	require.Error(t, err)
}
