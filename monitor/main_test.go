package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/keyword-radar/internal/config"
	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/notify"
	"github.com/DeafMist/keyword-radar/internal/querygen"
	"github.com/DeafMist/keyword-radar/internal/store"
)

func testConfig(t *testing.T, endpoint string) *config.Monitor {
	t.Helper()
	return &config.Monitor{
		Common: config.Common{
			StoreBackend: config.BackendFile,
			DataDir:      filepath.Join(t.TempDir(), "data"),
		},
		Keywords:         []string{"ai generate"},
		Plan:             querygen.Plan{Bare: true, SingleSuffix: true},
		SuggestEndpoint:  endpoint,
		MaxRetries:       1,
		Timeout:          time.Second,
		MaxBackoff:       time.Second,
		DynamicWindow:    10,
		DynamicThreshold: 0.3,
		QueryConcurrency: 2,
		RunMode:          "serial",
		RunParallelism:   1,
		RetentionDays:    30,
	}
}

func TestRunStoresSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		_, _ = fmt.Fprintf(w, `[%q,[%q,"ai generate logo"]]`, q, q)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.AutoCleanup = true
	require.Equal(t, 0, run(context.Background(), logger.Discard(), cfg))

	st, err := store.NewFileStore(cfg.DataDir, nil)
	require.NoError(t, err)
	snap, err := st.Latest(context.Background(), "ai generate")
	require.NoError(t, err)
	require.Equal(t, 27, snap.Stats.TotalQueries)
	require.Equal(t, 28, snap.Stats.UniqueSuggestions)
	require.Contains(t, snap.Suggestions, "ai generate z")
}

func TestRunFailsWhenARootFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.MinSuccessRatio = 0.5
	require.Equal(t, 1, run(context.Background(), logger.Discard(), cfg))
}

func TestBuildExecutorClampsToProxies(t *testing.T) {
	cfg := testConfig(t, "http://localhost/complete/search")
	cfg.QueryConcurrency = 8
	cfg.ProxyEnabled = true
	cfg.Proxies = []string{"p1:3128", "p2:3128", "p3:3128"}

	exec, err := buildExecutor(cfg, nil, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, 3, exec.Workers())

	cfg.ProxyEnabled = false
	exec, err = buildExecutor(cfg, nil, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, 8, exec.Workers())

	cfg.SuggestEndpoint = "ftp://nope"
	_, err = buildExecutor(cfg, nil, logger.Discard())
	require.Error(t, err)
}

func TestBuildNotifier(t *testing.T) {
	cfg := testConfig(t, "http://localhost")
	require.IsType(t, &notify.LogNotifier{}, buildNotifier(cfg, logger.Discard()))

	cfg.KafkaBrokers = []string{"localhost:9092"}
	n := buildNotifier(cfg, logger.Discard())
	require.IsType(t, &notify.KafkaNotifier{}, n)
	require.NoError(t, n.Close())
}

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, exitCode(models.RunReport{Results: []models.RunSummary{{State: models.StateCompleted}}}))
	require.Equal(t, 1, exitCode(models.RunReport{Results: []models.RunSummary{{State: models.StateCompleted}, {State: models.StateFailed}}}))
}
