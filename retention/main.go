package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/keyword-radar/internal/backend"
	"github.com/DeafMist/keyword-radar/internal/config"
	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/store"
)

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := openWithRetry(ctx, log, cfg.Common, 10)
	if err != nil {
		log.Error("failed to open snapshot store after retries", slog.Any("err", err))
		os.Exit(1)
	}
	defer st.Close()

	log.Info("connected to snapshot store", slog.String("backend", cfg.StoreBackend))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Int("retention_days", cfg.RetentionDays),
	)

	// Run immediately on start, but don't fail if the store is temporarily unavailable
	runOnce(ctx, log, st, cfg, time.Now())

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case now := <-ticker.C:
			runOnce(ctx, log, st, cfg, now)
		}
	}
}

// openWithRetry opens the store, backing off exponentially up to 30s between tries.
func openWithRetry(ctx context.Context, log *slog.Logger, cfg config.Common, maxRetries int) (store.Store, error) {
	retryDelay := 2 * time.Second
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		openCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		st, err := backend.Open(openCtx, cfg, log)
		cancel()
		if err == nil {
			return st, nil
		}
		lastErr = err
		log.Warn("failed to open snapshot store, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}
	return nil, lastErr
}

func runOnce(ctx context.Context, log *slog.Logger, st store.Store, cfg *config.Retention, now time.Time) int {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cutoff := store.Cutoff(now, cfg.RetentionDays)
	deleted, err := store.Purge(subCtx, st, cutoff, log)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return deleted
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int("deleted", deleted), slog.String("cutoff", cutoff))
	} else {
		log.Debug("retention run completed, no old snapshots found")
	}
	return deleted
}
