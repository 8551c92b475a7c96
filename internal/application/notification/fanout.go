package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultQueueSize bounds events waiting for dispatch
	DefaultQueueSize = 256
	// DefaultNotifierTimeout bounds one notifier call
	DefaultNotifierTimeout = 10 * time.Second
	// DefaultDedupTTL is how long a dispatched event id is remembered
	DefaultDedupTTL = 24 * time.Hour

	dedupKeyPrefix = "notify:"
)

// ErrQueueFull is returned by Handle when the event had to be dropped
var ErrQueueFull = errors.New("notification queue is full")

// Notifier delivers an event to one destination. Notifiers ignore event
// types they have nothing to say about.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event shared.DomainEvent) error
}

// FanOutConfig holds the collaborators of the fan-out
type FanOutConfig struct {
	Notifiers []Notifier
	Dedup     shared.IdempotencyStore
	Metrics   *telemetry.LedgerMetrics
	Logger    *zap.Logger
	// QueueSize defaults to DefaultQueueSize
	QueueSize int
	// Timeout defaults to DefaultNotifierTimeout
	Timeout time.Duration
	// DedupTTL defaults to DefaultDedupTTL
	DedupTTL time.Duration
}

type queuedEvent struct {
	ctx   context.Context
	event shared.DomainEvent
}

// FanOut hands committed ledger events to notifiers without blocking the
// publisher. A single worker drains a bounded FIFO, so events reach notifiers
// in commit order. Delivery is at most once: an event id is claimed in the
// dedup store before any notifier runs, and a full queue drops the event.
type FanOut struct {
	notifiers []Notifier
	dedup     shared.IdempotencyStore
	metrics   *telemetry.LedgerMetrics
	logger    *zap.Logger
	timeout   time.Duration
	dedupTTL  time.Duration
	queue     chan queuedEvent

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// NewFanOut creates a new FanOut. Call Start before publishing.
func NewFanOut(cfg FanOutConfig) *FanOut {
	f := &FanOut{
		notifiers: cfg.Notifiers,
		dedup:     cfg.Dedup,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		timeout:   cfg.Timeout,
		dedupTTL:  cfg.DedupTTL,
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.timeout <= 0 {
		f.timeout = DefaultNotifierTimeout
	}
	if f.dedupTTL <= 0 {
		f.dedupTTL = DefaultDedupTTL
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	f.queue = make(chan queuedEvent, size)
	return f
}

// EventTypes implements shared.EventHandler
func (f *FanOut) EventTypes() []string {
	return []string{
		ledger.EventTypeInvoiceCreated,
		ledger.EventTypePaymentApplied,
		ledger.EventTypeInvoiceConfirmed,
		conversation.EventTypeSupportRequested,
	}
}

// Handle enqueues the event and returns at once
func (f *FanOut) Handle(ctx context.Context, event shared.DomainEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.metrics.RecordNotification(ctx, event.EventType(), "dropped")
		f.logger.Warn("Notification fan-out is stopped, dropping event",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
		)
		return nil
	}

	select {
	case f.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		f.metrics.RecordNotification(ctx, event.EventType(), "dropped")
		f.logger.Warn("Notification queue full, dropping event",
			zap.String("event_type", event.EventType()),
			zap.String("event_id", event.EventID().String()),
			zap.Int("queue_size", cap(f.queue)),
		)
		return ErrQueueFull
	}
}

// Start launches the worker
func (f *FanOut) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.closed {
		return nil
	}
	f.started = true
	f.wg.Add(1)
	go f.run()
	f.logger.Info("Notification fan-out started", zap.Int("notifiers", len(f.notifiers)))
	return nil
}

// Stop closes the queue and waits for queued events to be dispatched, or
// for ctx to end.
func (f *FanOut) Stop(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.queue)
	started := f.started
	f.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		f.logger.Info("Notification fan-out stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FanOut) run() {
	defer f.wg.Done()
	for q := range f.queue {
		f.dispatch(q.ctx, q.event)
	}
}

func (f *FanOut) dispatch(ctx context.Context, event shared.DomainEvent) {
	ctx, span := telemetry.StartSpan(ctx, "notification.dispatch",
		"event.type", event.EventType(),
		"event.id", event.EventID().String(),
	)
	defer span.End()

	log := f.logger.With(
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
	)

	if f.dedup != nil {
		fresh, err := f.dedup.MarkProcessed(ctx, dedupKeyPrefix+event.EventID().String(), f.dedupTTL)
		if err != nil {
			// claiming failed; skipping keeps delivery at most once
			f.metrics.RecordNotification(ctx, event.EventType(), "dedup_error")
			log.Error("Failed to claim event for notification", zap.Error(err))
			return
		}
		if !fresh {
			f.metrics.RecordNotification(ctx, event.EventType(), "duplicate")
			log.Debug("Event already notified")
			return
		}
	}

	for _, n := range f.notifiers {
		f.notify(ctx, log, n, event)
	}
}

func (f *FanOut) notify(ctx context.Context, log *zap.Logger, n Notifier, event shared.DomainEvent) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			f.metrics.RecordNotification(ctx, event.EventType(), "failed")
			log.Error("Notifier panicked", zap.String("notifier", n.Name()), zap.Any("panic", r))
		}
	}()

	if err := n.Notify(ctx, event); err != nil {
		f.metrics.RecordNotification(ctx, event.EventType(), "failed")
		log.Warn("Notifier failed", zap.String("notifier", n.Name()), zap.Error(err))
		return
	}
	f.metrics.RecordNotification(ctx, event.EventType(), "sent")
}

var _ shared.EventHandler = (*FanOut)(nil)
