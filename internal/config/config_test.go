package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/keyword-radar/internal/config"
	"github.com/DeafMist/keyword-radar/internal/querygen"
)

func TestLoadMonitorDefaults(t *testing.T) {
	t.Setenv("KEYWORDS", "ai generate, chatgpt ,")
	t.Setenv("KEYWORDS_FILE", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := config.LoadMonitor()
	require.NoError(t, err)

	require.Equal(t, []string{"ai generate", "chatgpt"}, cfg.Keywords)
	require.Equal(t, config.BackendFile, cfg.StoreBackend)
	require.Equal(t, "data", cfg.DataDir)
	require.Equal(t, querygen.FullPlan(), cfg.Plan)
	require.Equal(t, time.Second, cfg.MinDelay)
	require.Equal(t, 3*time.Second, cfg.MaxDelay)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, 10*time.Second, cfg.Timeout)
	require.Equal(t, 30*time.Second, cfg.MaxBackoff)
	require.True(t, cfg.DynamicDelay)
	require.Equal(t, 20, cfg.DynamicWindow)
	require.Equal(t, 0.3, cfg.DynamicThreshold)
	require.Equal(t, "serial", cfg.RunMode)
	require.Equal(t, 1, cfg.QueryConcurrency)
	require.Zero(t, cfg.MinSuccessRatio)
	require.Equal(t, 30, cfg.RetentionDays)
	require.False(t, cfg.AutoCleanup)
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, "keyword_runs", cfg.KafkaTopic)
	require.Empty(t, cfg.UserAgents)
}

func TestLoadMonitorOverrides(t *testing.T) {
	t.Setenv("KEYWORDS", "ai generate")
	t.Setenv("STORE_BACKEND", "Pebble")
	t.Setenv("DATA_DIR", "/var/lib/radar")
	t.Setenv("PLAN_DOUBLE_PREFIX", "false")
	t.Setenv("PLAN_DOUBLE_SUFFIX", "0")
	t.Setenv("REQUEST_MIN_DELAY", "200ms")
	t.Setenv("REQUEST_MAX_DELAY", "500ms")
	t.Setenv("REQUEST_RATE_LIMIT", "2.5")
	t.Setenv("PROXY_ENABLED", "true")
	t.Setenv("PROXY_LIST", "http://p1:8080, p2:3128")
	t.Setenv("USER_AGENTS", "UA one, with comma|UA two")
	t.Setenv("QUERY_CONCURRENCY", "4")
	t.Setenv("RUN_MODE", "parallel")
	t.Setenv("RUN_PARALLELISM", "3")
	t.Setenv("MIN_SUCCESS_RATIO", "0.6")
	t.Setenv("AUTO_CLEANUP", "true")
	t.Setenv("KAFKA_BROKERS", "broker-a:29092,broker-b:29093")

	cfg, err := config.LoadMonitor()
	require.NoError(t, err)

	require.Equal(t, config.BackendPebble, cfg.StoreBackend)
	require.Equal(t, "/var/lib/radar", cfg.DataDir)
	require.Equal(t, 53, querygen.Count(cfg.Plan))
	require.Equal(t, 200*time.Millisecond, cfg.MinDelay)
	require.Equal(t, 2.5, cfg.RateLimit)
	require.Equal(t, []string{"http://p1:8080", "p2:3128"}, cfg.Proxies)
	require.Equal(t, []string{"UA one, with comma", "UA two"}, cfg.UserAgents)
	require.Equal(t, 4, cfg.QueryConcurrency)
	require.Equal(t, "parallel", cfg.RunMode)
	require.Equal(t, 3, cfg.RunParallelism)
	require.Equal(t, 0.6, cfg.MinSuccessRatio)
	require.True(t, cfg.AutoCleanup)
	require.Len(t, cfg.KafkaBrokers, 2)
}

func TestLoadMonitorKeywordsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
keywords:
  - root: ai generate
    enabled: true
  - root: paused topic
    enabled: false
  - root: "  chatgpt  "
`), 0o600))

	t.Setenv("KEYWORDS", "")
	t.Setenv("KEYWORDS_FILE", path)

	cfg, err := config.LoadMonitor()
	require.NoError(t, err)
	require.Equal(t, []string{"ai generate", "chatgpt"}, cfg.Keywords)

	t.Setenv("KEYWORDS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = config.LoadMonitor()
	require.Error(t, err)
}

func TestLoadMonitorRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"no keywords":      {"KEYWORDS": ""},
		"empty plan":       {"PLAN_BARE": "false", "PLAN_SINGLE_PREFIX": "false", "PLAN_SINGLE_SUFFIX": "false", "PLAN_DOUBLE_PREFIX": "false", "PLAN_DOUBLE_SUFFIX": "false"},
		"inverted delays":  {"REQUEST_MIN_DELAY": "5s", "REQUEST_MAX_DELAY": "1s"},
		"negative retries": {"REQUEST_MAX_RETRIES": "-1"},
		"no backoff cap":   {"REQUEST_MAX_BACKOFF": "0s"},
		"threshold":        {"DYNAMIC_THRESHOLD": "1.5"},
		"proxies missing":  {"PROXY_ENABLED": "true", "PROXY_LIST": ""},
		"run mode":         {"RUN_MODE": "turbo"},
		"success ratio":    {"MIN_SUCCESS_RATIO": "2"},
		"unknown backend":  {"STORE_BACKEND": "mysql"},
		"zero concurrency": {"QUERY_CONCURRENCY": "0"},
		"zero retention":   {"RETENTION_DAYS": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("KEYWORDS", "ai generate")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := config.LoadMonitor()
			require.Error(t, err)
		})
	}
}

func TestLoadAPI(t *testing.T) {
	t.Setenv("API_BIND_ADDR", ":9090")
	t.Setenv("STORE_BACKEND", "elasticsearch")
	t.Setenv("ELASTICSEARCH_ADDR", "http://api-es:9200")
	t.Setenv("ELASTICSEARCH_INDEX", "api-index")

	cfg, err := config.LoadAPI()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.BindAddr)
	require.Equal(t, config.BackendElasticsearch, cfg.StoreBackend)
	require.Equal(t, "http://api-es:9200", cfg.ElasticsearchAddr)
	require.Equal(t, "api-index", cfg.ElasticsearchIndex)
}

func TestLoadRetention(t *testing.T) {
	t.Setenv("RETENTION_CRON", "12h")
	t.Setenv("RETENTION_DAYS", "7")

	cfg, err := config.LoadRetention()
	require.NoError(t, err)

	require.Equal(t, 12*time.Hour, cfg.Interval)
	require.Equal(t, 7, cfg.RetentionDays)
	require.Equal(t, "keyword-snapshots", cfg.ElasticsearchIndex)

	t.Setenv("RETENTION_CRON", "-1h")
	_, err = config.LoadRetention()
	require.Error(t, err)
}

func TestResidentServicesRejectPebble(t *testing.T) {
	t.Setenv("STORE_BACKEND", "pebble")

	_, err := config.LoadAPI()
	require.ErrorContains(t, err, "single-process")

	_, err = config.LoadRetention()
	require.ErrorContains(t, err, "single-process")

	t.Setenv("KEYWORDS", "ai generate")
	cfg, err := config.LoadMonitor()
	require.NoError(t, err)
	require.Equal(t, config.BackendPebble, cfg.StoreBackend)
}
