package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/metrics"
	"github.com/DeafMist/keyword-radar/internal/models"
)

// Policy bounds how queries are paced and retried.
type Policy struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	MaxRetries int
	Timeout    time.Duration
	// MaxBackoff caps any single wait, including dynamically stretched delays. Required.
	MaxBackoff       time.Duration
	DynamicDelay     bool
	Window           int
	FailureThreshold float64
	Concurrency      int
	// RateLimit is a requests-per-second ceiling across workers; 0 disables it.
	RateLimit float64
}

// Validate rejects policies that could loop or block without bound.
func (p Policy) Validate() error {
	switch {
	case p.MinDelay < 0 || p.MaxDelay < 0:
		return errors.New("request delays cannot be negative")
	case p.MaxDelay < p.MinDelay:
		return errors.New("max delay must not be below min delay")
	case p.MaxRetries < 0:
		return errors.New("max retries cannot be negative")
	case p.Timeout <= 0:
		return errors.New("request timeout must be positive")
	case p.MaxBackoff <= 0:
		return errors.New("max backoff must be positive")
	case p.FailureThreshold < 0 || p.FailureThreshold > 1:
		return errors.New("failure threshold must be within [0,1]")
	case p.RateLimit < 0:
		return errors.New("rate limit cannot be negative")
	}
	return nil
}

// Option customizes an Executor.
type Option func(*Executor)

// WithProxies routes attempts through rotator.
func WithProxies(rotator *ProxyRotator) Option {
	return func(e *Executor) { e.proxies = rotator }
}

// WithHeaderPool overrides the request header pool.
func WithHeaderPool(pool *HeaderPool) Option {
	return func(e *Executor) { e.headers = pool }
}

// WithMetrics records attempt and query counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = logger.OrDiscard(log) }
}

// WithPacer replaces the pacer built from the policy.
func WithPacer(p *Pacer) Option {
	return func(e *Executor) { e.pacer = p }
}

// Executor runs query batches against the suggestion endpoint.
type Executor struct {
	client  *Client
	policy  Policy
	proxies *ProxyRotator
	headers *HeaderPool
	pacer   *Pacer
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *slog.Logger
	workers int
	sleep   func(ctx context.Context, d time.Duration) error
	// slots bounds in-flight queries across every concurrent Execute call.
	slots *semaphore.Weighted
}

// NewExecutor validates policy and wires the pacing state shared by all workers.
func NewExecutor(client *Client, policy Policy, opts ...Option) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request policy: %w", err)
	}

	e := &Executor{
		client:  client,
		policy:  policy,
		headers: NewHeaderPool(nil),
		pacer:   NewPacer(policy.MinDelay, policy.MaxDelay, policy.MaxBackoff, policy.DynamicDelay, policy.Window, policy.FailureThreshold),
		log:     logger.Discard(),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.proxies == nil {
		direct, err := NewProxyRotator(nil)
		if err != nil {
			return nil, err
		}
		e.proxies = direct
	}
	if policy.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(policy.RateLimit), 1)
	}

	e.workers = policy.Concurrency
	if e.workers <= 0 {
		e.workers = 1
	}
	if n := e.proxies.Len(); n > 0 && e.workers > n {
		e.log.Warn("query concurrency clamped to proxy pool size",
			slog.Int("requested", e.workers),
			slog.Int("proxies", n),
		)
		e.workers = n
	}
	e.slots = semaphore.NewWeighted(int64(e.workers))
	return e, nil
}

// Workers returns the effective pool size.
func (e *Executor) Workers() int {
	return e.workers
}

// Pacer exposes the shared pacing state.
func (e *Executor) Pacer() *Pacer {
	return e.pacer
}

// Execute runs every query and returns one terminal result per query. Result order
// is not meaningful. Cancellation is checked between dispatches; a canceled batch
// returns the context error and no results. Concurrent calls share the worker limit.
func (e *Executor) Execute(ctx context.Context, queries []string) ([]models.QueryResult, error) {
	results := make([]models.QueryResult, len(queries))

	var g errgroup.Group
	for i, query := range queries {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer e.slots.Release(1)
			results[i] = e.Run(ctx, query)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("execute batch: %w", err)
	}
	return results, nil
}

// Run drives one query through Attempting(n) -> Success | Attempting(n+1) | Failure.
// At most MaxRetries+1 requests are made.
func (e *Executor) Run(ctx context.Context, query string) models.QueryResult {
	res := models.QueryResult{Query: query}
	var last *AttemptError

	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		wait := e.pacer.Delay()
		if attempt > 0 {
			wait = e.pacer.Backoff(wait, attempt)
		}
		if err := e.sleep(ctx, wait); err != nil {
			last = canceled(err)
			break
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				last = canceled(ctx.Err())
				break
			}
		}

		route := e.proxies.Next()
		res.Attempts++
		suggestions, err := e.client.Fetch(ctx, route, query, e.headers.Next(), e.policy.Timeout)
		if err == nil {
			e.metrics.ObserveAttempt("success")
			res.Suggestions = suggestions
			e.finish(res, nil)
			return res
		}

		if !errors.As(err, &last) {
			last = &AttemptError{Kind: models.FailureConnection, Err: err}
		}
		e.metrics.ObserveAttempt(string(last.Kind))
		e.log.Debug("suggest attempt failed",
			slog.String("query", query),
			slog.Int("attempt", attempt+1),
			slog.String("route", route.Label()),
			slog.Any("err", last),
		)
		if !last.Retryable() {
			break
		}
	}

	res.Failure = &models.QueryFailure{Kind: last.Kind, Message: last.Error()}
	e.finish(res, last)
	return res
}

func (e *Executor) finish(res models.QueryResult, last *AttemptError) {
	e.metrics.ObserveQuery(res)
	if last != nil && last.Kind == models.FailureCanceled {
		return
	}
	mult := e.pacer.Record(last != nil, last != nil && last.blockSignal())
	e.metrics.SetDelayMultiplier(mult)
	if last != nil {
		e.log.Warn("query failed",
			slog.String("query", res.Query),
			slog.Int("attempts", res.Attempts),
			slog.String("kind", string(last.Kind)),
			slog.Float64("delay_multiplier", mult),
		)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
