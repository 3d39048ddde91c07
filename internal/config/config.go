package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/keyword-radar/internal/querygen"
)

// Store backends.
const (
	BackendFile          = "file"
	BackendPebble        = "pebble"
	BackendElasticsearch = "elasticsearch"
)

// Common selects the snapshot store shared by every service.
type Common struct {
	StoreBackend       string
	DataDir            string
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Monitor holds configuration for one monitoring run.
type Monitor struct {
	Common
	Keywords []string
	Plan     querygen.Plan

	SuggestEndpoint string
	SuggestClient   string
	SuggestLanguage string

	MinDelay     time.Duration
	MaxDelay     time.Duration
	MaxRetries   int
	Timeout      time.Duration
	MaxBackoff   time.Duration
	RateLimit    float64
	DynamicDelay bool
	// DynamicWindow is how many finished queries feed the failure ratio.
	DynamicWindow    int
	DynamicThreshold float64

	ProxyEnabled bool
	Proxies      []string
	UserAgents   []string

	QueryConcurrency int
	RunMode          string
	RunParallelism   int
	MinSuccessRatio  float64

	RetentionDays int
	AutoCleanup   bool

	KafkaBrokers []string
	KafkaTopic   string
	MetricsAddr  string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr string
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval      time.Duration
	RetentionDays int
}

func loadCommon() (Common, error) {
	c := Common{
		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
		DataDir:            getEnv("DATA_DIR", "data"),
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "keyword-snapshots"),
	}
	switch c.StoreBackend {
	case BackendFile, BackendPebble, BackendElasticsearch:
	default:
		return c, fmt.Errorf("STORE_BACKEND must be one of file, pebble, elasticsearch")
	}
	return c, nil
}

// requireShared rejects the pebble backend for long-running services: pebble locks
// its directory for one process, so a resident service would lock out the monitor.
func requireShared(c Common, service string) error {
	if c.StoreBackend == BackendPebble {
		return fmt.Errorf("STORE_BACKEND=pebble is single-process; %s needs file or elasticsearch", service)
	}
	return nil
}

// LoadMonitor builds a Monitor config from environment variables.
func LoadMonitor() (*Monitor, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}

	c := &Monitor{
		Common: common,
		Plan: querygen.Plan{
			Bare:         getBool("PLAN_BARE", true),
			SinglePrefix: getBool("PLAN_SINGLE_PREFIX", true),
			SingleSuffix: getBool("PLAN_SINGLE_SUFFIX", true),
			DoublePrefix: getBool("PLAN_DOUBLE_PREFIX", true),
			DoubleSuffix: getBool("PLAN_DOUBLE_SUFFIX", true),
		},
		SuggestEndpoint:  getEnv("SUGGEST_ENDPOINT", "http://suggestqueries.google.com/complete/search"),
		SuggestClient:    getEnv("SUGGEST_CLIENT", "firefox"),
		SuggestLanguage:  getEnv("SUGGEST_LANGUAGE", "en"),
		MinDelay:         getDuration("REQUEST_MIN_DELAY", "1s"),
		MaxDelay:         getDuration("REQUEST_MAX_DELAY", "3s"),
		MaxRetries:       getInt("REQUEST_MAX_RETRIES", 3),
		Timeout:          getDuration("REQUEST_TIMEOUT", "10s"),
		MaxBackoff:       getDuration("REQUEST_MAX_BACKOFF", "30s"),
		RateLimit:        getFloat("REQUEST_RATE_LIMIT", 0),
		DynamicDelay:     getBool("DYNAMIC_DELAY", true),
		DynamicWindow:    getInt("DYNAMIC_WINDOW", 20),
		DynamicThreshold: getFloat("DYNAMIC_THRESHOLD", 0.3),
		ProxyEnabled:     getBool("PROXY_ENABLED", false),
		Proxies:          splitAndTrim(getEnv("PROXY_LIST", "")),
		UserAgents:       splitOn(getEnv("USER_AGENTS", ""), "|"),
		QueryConcurrency: getInt("QUERY_CONCURRENCY", 1),
		RunMode:          strings.ToLower(getEnv("RUN_MODE", "serial")),
		RunParallelism:   getInt("RUN_PARALLELISM", 2),
		MinSuccessRatio:  getFloat("MIN_SUCCESS_RATIO", 0),
		RetentionDays:    getInt("RETENTION_DAYS", 30),
		AutoCleanup:      getBool("AUTO_CLEANUP", false),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "keyword_runs"),
		MetricsAddr:      getEnv("METRICS_ADDR", ""),
	}

	c.Keywords = splitAndTrim(getEnv("KEYWORDS", ""))
	if path := getEnv("KEYWORDS_FILE", ""); path != "" {
		fromFile, err := LoadKeywordsFile(path)
		if err != nil {
			return nil, err
		}
		c.Keywords = append(c.Keywords, fromFile...)
	}

	if len(c.Keywords) == 0 {
		return nil, fmt.Errorf("KEYWORDS or KEYWORDS_FILE must provide at least one keyword")
	}
	if c.Plan.Empty() {
		return nil, fmt.Errorf("at least one PLAN_* class must be enabled")
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return nil, fmt.Errorf("REQUEST_MIN_DELAY must be non-negative and not exceed REQUEST_MAX_DELAY")
	}
	if c.MaxRetries < 0 {
		return nil, fmt.Errorf("REQUEST_MAX_RETRIES cannot be negative")
	}
	if c.Timeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.MaxBackoff <= 0 {
		return nil, fmt.Errorf("REQUEST_MAX_BACKOFF must be positive")
	}
	if c.RateLimit < 0 {
		return nil, fmt.Errorf("REQUEST_RATE_LIMIT cannot be negative")
	}
	if c.DynamicWindow <= 0 {
		return nil, fmt.Errorf("DYNAMIC_WINDOW must be positive")
	}
	if c.DynamicThreshold < 0 || c.DynamicThreshold > 1 {
		return nil, fmt.Errorf("DYNAMIC_THRESHOLD must be within [0,1]")
	}
	if c.ProxyEnabled && len(c.Proxies) == 0 {
		return nil, fmt.Errorf("PROXY_LIST must contain at least one proxy when PROXY_ENABLED is set")
	}
	if c.QueryConcurrency <= 0 {
		return nil, fmt.Errorf("QUERY_CONCURRENCY must be positive")
	}
	if c.RunMode != "serial" && c.RunMode != "parallel" {
		return nil, fmt.Errorf("RUN_MODE must be serial or parallel")
	}
	if c.RunParallelism <= 0 {
		return nil, fmt.Errorf("RUN_PARALLELISM must be positive")
	}
	if c.MinSuccessRatio < 0 || c.MinSuccessRatio > 1 {
		return nil, fmt.Errorf("MIN_SUCCESS_RATIO must be within [0,1]")
	}
	if c.RetentionDays <= 0 {
		return nil, fmt.Errorf("RETENTION_DAYS must be positive")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	if err := requireShared(common, "api"); err != nil {
		return nil, err
	}
	return &API{
		Common:   common,
		BindAddr: getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
	}, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	common, err := loadCommon()
	if err != nil {
		return nil, err
	}
	if err := requireShared(common, "retention"); err != nil {
		return nil, err
	}
	c := &Retention{
		Common:        common,
		Interval:      getDuration("RETENTION_CRON", "24h"),
		RetentionDays: getInt("RETENTION_DAYS", 30),
	}

	if c.RetentionDays <= 0 {
		return nil, fmt.Errorf("RETENTION_DAYS must be positive")
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}

	return c, nil
}

type keywordsFile struct {
	Keywords []struct {
		Root    string `yaml:"root"`
		Enabled *bool  `yaml:"enabled"`
	} `yaml:"keywords"`
}

// LoadKeywordsFile reads the enabled roots from a YAML file. Entries without
// an enabled field are enabled.
func LoadKeywordsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}
	var f keywordsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse keywords file %s: %w", path, err)
	}
	out := make([]string, 0, len(f.Keywords))
	for _, k := range f.Keywords {
		if k.Enabled != nil && !*k.Enabled {
			continue
		}
		if root := strings.TrimSpace(k.Root); root != "" {
			out = append(out, root)
		}
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	return splitOn(raw, ",")
}

func splitOn(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
