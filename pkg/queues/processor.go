// Package queues drains the notification, webhook and schedule outboxes
// written by workflow entry actions.
package queues

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/dealflow/pkg/eventbus"
	"github.com/dukex/dealflow/pkg/events"
	"github.com/dukex/dealflow/pkg/log"
	"github.com/dukex/dealflow/pkg/models"
	"github.com/dukex/dealflow/pkg/otelhelper"
	"github.com/dukex/dealflow/pkg/persistence"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize       = 50
	DefaultDeliveryTimeout = 10 * time.Second
)

var ErrNoNotifier = errors.New("no notifier configured for notification channels")

// Result counts what one processor run did.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type RunResult struct {
	Notifications Result `json:"notifications"`
	Webhooks      Result `json:"webhooks"`
	Schedules     Result `json:"schedules"`
}

type Processor struct {
	persistence persistence.Persistence
	notifiers   []Notifier
	directory   *RecipientDirectory
	dispatcher  *Dispatcher
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger

	batchSize       int
	deliveryTimeout time.Duration
	now             func() time.Time
}

type Option func(*Processor)

// WithNotifiers replaces the default log notifier.
func WithNotifiers(notifiers ...Notifier) Option {
	return func(p *Processor) {
		p.notifiers = notifiers
	}
}

func WithDirectory(directory *RecipientDirectory) Option {
	return func(p *Processor) {
		p.directory = directory
	}
}

func WithDispatcher(dispatcher *Dispatcher) Option {
	return func(p *Processor) {
		p.dispatcher = dispatcher
	}
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(p *Processor) {
		p.publisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		p.tracer = tracer
	}
}

func WithBatchSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(p *Processor) {
		if timeout > 0 {
			p.deliveryTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func NewProcessor(p persistence.Persistence, logger *slog.Logger, opts ...Option) *Processor {
	logger = logger.With("module", "queues")

	processor := &Processor{
		persistence:     p,
		notifiers:       []Notifier{NewLogNotifier(logger)},
		directory:       NewRecipientDirectory(nil),
		dispatcher:      NewDispatcher(nil),
		tracer:          otelhelper.NoopTracer(),
		logger:          logger,
		batchSize:       DefaultBatchSize,
		deliveryTimeout: DefaultDeliveryTimeout,
		now:             func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(processor)
	}

	return processor
}

type deliverFunc func(ctx context.Context, entry *models.QueueEntry) error

// RunAll drains the three queues concurrently. A storage error on one queue
// does not stop the others; the first such error is returned.
func (p *Processor) RunAll(ctx context.Context) (RunResult, error) {
	var result RunResult

	var g errgroup.Group

	g.Go(func() error {
		var err error
		result.Notifications, err = p.ProcessNotifications(ctx)

		return err
	})

	g.Go(func() error {
		var err error
		result.Webhooks, err = p.ProcessWebhooks(ctx)

		return err
	})

	g.Go(func() error {
		var err error
		result.Schedules, err = p.ProcessSchedules(ctx)

		return err
	})

	return result, g.Wait()
}

// Run drains one queue by name.
func (p *Processor) Run(ctx context.Context, queue models.Queue) (Result, error) {
	switch queue {
	case models.QueueNotifications:
		return p.ProcessNotifications(ctx)
	case models.QueueWebhooks:
		return p.ProcessWebhooks(ctx)
	case models.QueueSchedules:
		return p.ProcessSchedules(ctx)
	default:
		return Result{}, fmt.Errorf("unknown queue %q", queue)
	}
}

func (p *Processor) ProcessNotifications(ctx context.Context) (Result, error) {
	return p.process(ctx, models.QueueNotifications, p.deliverNotification)
}

func (p *Processor) ProcessWebhooks(ctx context.Context) (Result, error) {
	return p.process(ctx, models.QueueWebhooks, p.deliverWebhook)
}

func (p *Processor) ProcessSchedules(ctx context.Context) (Result, error) {
	return p.process(ctx, models.QueueSchedules, p.fireSchedule)
}

// ListFailed returns FAILED entries of queue, oldest first.
func (p *Processor) ListFailed(ctx context.Context, queue models.Queue, limit int) ([]*models.QueueEntry, error) {
	if !queue.Valid() {
		return nil, fmt.Errorf("unknown queue %q", queue)
	}

	return p.persistence.QueueRepository().ListByStatus(ctx, queue, models.QueueStatusFailed, limit)
}

// Requeue resets a FAILED entry so the next run retries it.
func (p *Processor) Requeue(ctx context.Context, queue models.Queue, id string) (*models.QueueEntry, error) {
	if !queue.Valid() {
		return nil, fmt.Errorf("unknown queue %q", queue)
	}

	entry, err := p.persistence.QueueRepository().Requeue(ctx, queue, id)
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "Queue entry requeued", "queue", queue, "id", id, "deal_id", entry.DealID)

	return entry, nil
}

func (p *Processor) process(ctx context.Context, queue models.Queue, deliver deliverFunc) (Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "queues.process",
		attribute.String(otelhelper.QueueKey, string(queue)),
	)
	defer span.End()

	var result Result

	entries, err := p.persistence.QueueRepository().ClaimPending(ctx, queue, p.batchSize, p.now())
	if err != nil {
		otelhelper.SetError(span, err)

		return result, fmt.Errorf("failed to claim %s: %w", queue, err)
	}

	for _, entry := range entries {
		deliveryCtx, cancel := context.WithTimeout(ctx, p.deliveryTimeout)
		deliveryCtx = log.IntoContext(deliveryCtx, p.logger.With("queue", queue, "id", entry.ID, "deal_id", entry.DealID))
		deliveryErr := deliver(deliveryCtx, entry)
		cancel()

		status := models.QueueStatusSent
		message := ""

		if deliveryErr != nil {
			status = models.QueueStatusFailed
			message = deliveryErr.Error()
			result.Failed++

			p.logger.WarnContext(ctx, "Queue entry failed",
				"queue", queue,
				"id", entry.ID,
				"deal_id", entry.DealID,
				"attempts", entry.Attempts,
				"error", deliveryErr,
			)
		} else {
			result.Processed++
		}

		// The parent context may be cancelled; the outcome still has to be recorded.
		markCtx := context.WithoutCancel(ctx)

		if err := p.persistence.QueueRepository().MarkResult(markCtx, queue, entry.ID, status, message); err != nil {
			p.logger.ErrorContext(ctx, "Failed to record queue result", "queue", queue, "id", entry.ID, "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("dealflow.queue.processed", result.Processed),
		attribute.Int("dealflow.queue.failed", result.Failed),
	)

	if len(entries) > 0 {
		p.logger.InfoContext(ctx, "Queue processed", "queue", queue, "processed", result.Processed, "failed", result.Failed)
	}

	return result, nil
}

func (p *Processor) deliverNotification(ctx context.Context, entry *models.QueueEntry) error {
	delivering, mirrors := p.notifiersFor(entry)
	if len(delivering) == 0 {
		return ErrNoNotifier
	}

	notifiers := slices.Concat(delivering, mirrors)
	message, _ := entry.Payload["message"].(string)

	var errs []error

	for _, recipient := range p.directory.Resolve(entry.ToRoles) {
		notification := Notification{
			DealID:    entry.DealID,
			Kind:      entry.Kind,
			Template:  entry.Target,
			Role:      recipient.Role,
			Recipient: recipient.Address,
			Message:   message,
		}

		for _, notifier := range notifiers {
			if err := notifier.Notify(ctx, notification); err != nil {
				errs = append(errs, fmt.Errorf("%s to %s: %w", notifier.Name(), recipient.Role, err))
			}
		}
	}

	return errors.Join(errs...)
}

// notifiersFor splits the configured notifiers into those delivering the
// entry's channels and the log notifier mirroring channels it is not named
// in. Only the first group makes a notification count as sent. An entry
// without channels is delivered by every notifier.
func (p *Processor) notifiersFor(entry *models.QueueEntry) ([]Notifier, []Notifier) {
	channels := stringSlice(entry.Payload["channels"])
	if len(channels) == 0 {
		return p.notifiers, nil
	}

	var delivering, mirrors []Notifier

	for _, notifier := range p.notifiers {
		switch {
		case slices.Contains(channels, notifier.Name()):
			delivering = append(delivering, notifier)
		case notifier.Name() == logNotifierName:
			mirrors = append(mirrors, notifier)
		}
	}

	return delivering, mirrors
}

func (p *Processor) deliverWebhook(ctx context.Context, entry *models.QueueEntry) error {
	if entry.Target == "" {
		return errors.New("webhook has no target url")
	}

	return p.dispatcher.Dispatch(ctx, entry.Target, entry.ActionHash, entry.Payload)
}

// fireSchedule publishes the job and, for cron jobs, arms the next occurrence
// while the deal is still in the status that scheduled it.
func (p *Processor) fireSchedule(ctx context.Context, entry *models.QueueEntry) error {
	deal, err := p.persistence.DealRepository().GetDealByID(ctx, entry.DealID)
	if err != nil {
		return fmt.Errorf("failed to load deal: %w", err)
	}

	logger := log.FromContext(ctx)

	scheduledIn, _ := entry.Payload["status"].(string)
	if scheduledIn != "" && deal.Status != scheduledIn {
		logger.InfoContext(ctx, "Schedule skipped, deal moved on",
			"job", entry.Kind,
			"scheduled_in", scheduledIn,
			"status", deal.Status,
		)

		return nil
	}

	if p.publisher != nil {
		event := events.ScheduleFired{
			BaseEvent: events.NewBaseEvent(events.ScheduleFiredEvent, deal.ID, deal.WorkflowID),
			JobType:   entry.Kind,
			Cron:      entry.Cron,
			Payload:   entry.Payload,
		}

		if err := p.publisher.Publish(ctx, deal.ID, event); err != nil {
			return fmt.Errorf("failed to publish schedule: %w", err)
		}
	}

	logger.InfoContext(ctx, "Schedule fired", "job", entry.Kind, "template", entry.Target)

	if entry.Cron == "" {
		return nil
	}

	return p.rearm(ctx, entry)
}

func (p *Processor) rearm(ctx context.Context, entry *models.QueueEntry) error {
	schedule, err := cron.ParseStandard(entry.Cron)
	if err != nil {
		return fmt.Errorf("invalid cron %q: %w", entry.Cron, err)
	}

	location := time.UTC

	if tz, _ := entry.Payload["timezone"].(string); tz != "" {
		if loaded, err := time.LoadLocation(tz); err == nil {
			location = loaded
		}
	}

	from := p.now()
	if entry.DueAt != nil && entry.DueAt.After(from) {
		from = *entry.DueAt
	}

	next := schedule.Next(from.In(location)).UTC()

	_, err = p.persistence.QueueRepository().Enqueue(ctx, &models.QueueEntry{
		Queue:      models.QueueSchedules,
		DealID:     entry.DealID,
		Kind:       entry.Kind,
		Target:     entry.Target,
		Cron:       entry.Cron,
		Payload:    entry.Payload,
		ActionHash: nextOccurrenceHash(entry.ActionHash, next),
		DueAt:      &next,
	})
	if err != nil {
		return fmt.Errorf("failed to arm next occurrence: %w", err)
	}

	return nil
}

// nextOccurrenceHash chains occurrences so a retried fire never arms the same
// occurrence twice.
func nextOccurrenceHash(previous string, due time.Time) string {
	sum := sha256.Sum256([]byte(previous + "\x00" + due.UTC().Format(time.RFC3339)))

	return hex.EncodeToString(sum[:])
}

func stringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))

		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}
