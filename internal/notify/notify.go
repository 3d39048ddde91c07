package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/models"
)

// TopNew bounds how many new keywords a notification carries.
const TopNew = 20

const (
	eventRootRun   = "root_run"
	eventRunReport = "run_report"

	defaultAttempts = 5
)

// Notifier hands finished runs to downstream collaborators. Delivery failures are
// returned to the caller, which logs them; they never change a run's outcome.
type Notifier interface {
	NotifyRun(ctx context.Context, summary models.RunSummary) error
	NotifyReport(ctx context.Context, report models.RunReport) error
	Close() error
}

// ReportPayload is the compact daily summary of one invocation.
type ReportPayload struct {
	RunID     string                 `json:"run_id"`
	Date      string                 `json:"date"`
	Completed int                    `json:"completed"`
	Failed    int                    `json:"failed"`
	Roots     []models.RunHighlights `json:"roots"`
	StartedAt time.Time              `json:"started_at"`
	EndedAt   time.Time              `json:"ended_at"`
}

// NewReportPayload trims report for delivery.
func NewReportPayload(report models.RunReport) ReportPayload {
	completed, failed := report.Counts()
	p := ReportPayload{
		RunID:     report.RunID,
		Date:      report.Date,
		Completed: completed,
		Failed:    failed,
		Roots:     make([]models.RunHighlights, 0, len(report.Results)),
		StartedAt: report.StartedAt,
		EndedAt:   report.EndedAt,
	}
	for _, res := range report.Results {
		p.Roots = append(p.Roots, res.Highlights(TopNew))
	}
	return p
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes run highlights keyed by root.
type KafkaNotifier struct {
	writer   messageWriter
	log      *slog.Logger
	attempts int
	backoff  time.Duration
}

// NewKafka builds a notifier writing to topic.
func NewKafka(brokers []string, topic string, log *slog.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
	}
	return newKafkaNotifier(writer, log, time.Second)
}

func newKafkaNotifier(w messageWriter, log *slog.Logger, backoff time.Duration) *KafkaNotifier {
	return &KafkaNotifier{writer: w, log: logger.OrDiscard(log), attempts: defaultAttempts, backoff: backoff}
}

func (n *KafkaNotifier) NotifyRun(ctx context.Context, summary models.RunSummary) error {
	payload, err := json.Marshal(summary.Highlights(TopNew))
	if err != nil {
		return fmt.Errorf("marshal run highlights: %w", err)
	}
	return n.publish(ctx, kafka.Message{
		Key:     []byte(summary.Root),
		Value:   payload,
		Headers: headers(eventRootRun, summary.RunID),
	})
}

func (n *KafkaNotifier) NotifyReport(ctx context.Context, report models.RunReport) error {
	payload, err := json.Marshal(NewReportPayload(report))
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	return n.publish(ctx, kafka.Message{
		Key:     []byte(report.RunID),
		Value:   payload,
		Headers: headers(eventRunReport, report.RunID),
	})
}

// publish retries the write with exponential backoff.
func (n *KafkaNotifier) publish(ctx context.Context, msg kafka.Message) error {
	var lastErr error
	for attempt := range n.attempts {
		err := n.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == n.attempts-1 {
			break
		}

		backoff := n.backoff * time.Duration(1<<uint(attempt))
		n.log.Warn("notification write failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("publish notification: %w", ctx.Err())
		}
	}
	return fmt.Errorf("publish notification after %d attempts: %w", n.attempts, lastErr)
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func headers(event, runID string) []kafka.Header {
	return []kafka.Header{
		{Key: "event", Value: []byte(event)},
		{Key: "run_id", Value: []byte(runID)},
		{Key: "timestamp", Value: []byte(strconv.FormatInt(time.Now().UTC().Unix(), 10))},
	}
}

// LogNotifier writes highlights to the log. It is used when no broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

// NewLog builds a log-only notifier.
func NewLog(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.OrDiscard(log)}
}

func (n *LogNotifier) NotifyRun(_ context.Context, summary models.RunSummary) error {
	h := summary.Highlights(TopNew)
	n.log.Info("root run finished",
		slog.String("run_id", h.RunID),
		slog.String("root", h.Root),
		slog.String("state", string(h.State)),
		slog.Bool("baseline", h.Baseline),
		slog.Int("new", h.NewCount),
		slog.Int("disappeared", h.DisappearedCount),
		slog.Any("top_new", h.TopNew),
	)
	return nil
}

func (n *LogNotifier) NotifyReport(_ context.Context, report models.RunReport) error {
	p := NewReportPayload(report)
	n.log.Info("run report",
		slog.String("run_id", p.RunID),
		slog.String("date", p.Date),
		slog.Int("completed", p.Completed),
		slog.Int("failed", p.Failed),
	)
	return nil
}

func (n *LogNotifier) Close() error {
	return nil
}
