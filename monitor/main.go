package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/keyword-radar/internal/backend"
	"github.com/DeafMist/keyword-radar/internal/config"
	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/metrics"
	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/notify"
	"github.com/DeafMist/keyword-radar/internal/orchestrator"
	"github.com/DeafMist/keyword-radar/internal/store"
	"github.com/DeafMist/keyword-radar/internal/suggest"
)

func main() {
	log := logger.New("monitor")
	cfg, err := config.LoadMonitor()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	code := run(ctx, log, cfg)
	stop()
	os.Exit(code)
}

// run executes one monitoring pass and returns the process exit code.
func run(ctx context.Context, log *slog.Logger, cfg *config.Monitor) int {
	st, err := backend.Open(ctx, cfg.Common, log)
	if err != nil {
		log.Error("open snapshot store", slog.Any("err", err))
		return 1
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(log, cfg.MetricsAddr, reg)
		defer shutdown()
	}

	exec, err := buildExecutor(cfg, m, log)
	if err != nil {
		log.Error("init executor", slog.Any("err", err))
		return 1
	}

	notifier := buildNotifier(cfg, log)
	defer notifier.Close()

	mode, err := orchestrator.ParseMode(cfg.RunMode)
	if err != nil {
		log.Error("init orchestrator", slog.Any("err", err))
		return 1
	}
	orch := orchestrator.New(exec, st, orchestrator.Config{
		Plan:            cfg.Plan,
		Mode:            mode,
		Parallelism:     cfg.RunParallelism,
		MinSuccessRatio: cfg.MinSuccessRatio,
	},
		orchestrator.WithNotifier(notifier),
		orchestrator.WithMetrics(m),
		orchestrator.WithLogger(log),
	)

	log.Info("monitor started",
		slog.Int("keywords", len(cfg.Keywords)),
		slog.String("backend", cfg.StoreBackend),
		slog.String("mode", cfg.RunMode),
		slog.Int("query_workers", exec.Workers()),
	)
	report := orch.Run(ctx, cfg.Keywords)

	if cfg.AutoCleanup {
		cleanup(ctx, log, st, cfg.RetentionDays, time.Now())
	}
	return exitCode(report)
}

func buildExecutor(cfg *config.Monitor, m *metrics.Metrics, log *slog.Logger) (*suggest.Executor, error) {
	client, err := suggest.NewClient(cfg.SuggestEndpoint, cfg.SuggestClient, cfg.SuggestLanguage)
	if err != nil {
		return nil, err
	}

	var proxies []string
	if cfg.ProxyEnabled {
		proxies = cfg.Proxies
	}
	rotator, err := suggest.NewProxyRotator(proxies)
	if err != nil {
		return nil, err
	}

	policy := suggest.Policy{
		MinDelay:         cfg.MinDelay,
		MaxDelay:         cfg.MaxDelay,
		MaxRetries:       cfg.MaxRetries,
		Timeout:          cfg.Timeout,
		MaxBackoff:       cfg.MaxBackoff,
		DynamicDelay:     cfg.DynamicDelay,
		Window:           cfg.DynamicWindow,
		FailureThreshold: cfg.DynamicThreshold,
		Concurrency:      cfg.QueryConcurrency,
		RateLimit:        cfg.RateLimit,
	}
	return suggest.NewExecutor(client, policy,
		suggest.WithLogger(log),
		suggest.WithProxies(rotator),
		suggest.WithHeaderPool(suggest.NewHeaderPool(cfg.UserAgents)),
		suggest.WithMetrics(m),
	)
}

func buildNotifier(cfg *config.Monitor, log *slog.Logger) notify.Notifier {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.NewLog(log)
	}
	log.Info("publishing run summaries", slog.String("topic", cfg.KafkaTopic))
	return notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
}

func serveMetrics(log *slog.Logger, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", slog.Any("err", err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("metrics server shutdown", slog.Any("err", err))
		}
	}
}

func cleanup(ctx context.Context, log *slog.Logger, st store.Store, days int, now time.Time) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if _, err := store.Purge(subCtx, st, store.Cutoff(now, days), log); err != nil {
		log.Warn("auto cleanup failed", slog.Any("err", err))
	}
}

// exitCode is non-zero when any root failed, so schedulers can alert on it.
func exitCode(report models.RunReport) int {
	if _, failed := report.Counts(); failed > 0 {
		return 1
	}
	return 0
}
