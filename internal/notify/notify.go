// Package notify fans corrected-address events out to downstream consumers.
// Enqueue is fire-and-forget for the orchestrator; a background worker drains
// the inbox and publishes to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "simba/pkg/domain"
)

// Event is the published notification payload. MessageID makes duplicate
// deliveries detectable downstream.
type Event struct {
	MessageID       string     `json:"message_id"`
	OriginalShareID id.ShareID `json:"original_share_id"`
	OccurredAt      time.Time  `json:"occurred_at"`
}

// Sink publishes one serialized event. The Kafka producer satisfies it in
// production; tests use MemorySink.
type Sink interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// ErrInboxFull reports that an event could not be queued before the enqueue
// deadline. The caller decides whether the miss matters.
var ErrInboxFull = errors.New("notification inbox full")

const defaultEnqueueWait = 2 * time.Second

// Dispatcher buffers notification events for the background worker. A full
// inbox makes Enqueue wait briefly for the worker to catch up and then fail
// loudly instead of dropping the event in silence.
type Dispatcher struct {
	inbox   chan Event
	logger  *slog.Logger
	now     func() time.Time
	maxWait time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// WithEnqueueWait bounds how long Enqueue blocks on a full inbox.
func WithEnqueueWait(wait time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxWait = wait
	}
}

// NewDispatcher constructs a dispatcher with the given inbox capacity.
func NewDispatcher(capacity int, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		inbox:   make(chan Event, capacity),
		logger:  slog.Default(),
		now:     time.Now,
		maxWait: defaultEnqueueWait,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Enqueue queues a notification. The fast path never blocks; when the inbox
// is full the call waits up to the configured bound for the worker to drain
// and reports ErrInboxFull on timeout so the miss reaches the caller's logs.
func (d *Dispatcher) Enqueue(ctx context.Context, originalShareID id.ShareID) error {
	event := Event{
		MessageID:       uuid.NewString(),
		OriginalShareID: originalShareID,
		OccurredAt:      d.now().UTC(),
	}
	select {
	case d.inbox <- event:
		return nil
	default:
	}

	timer := time.NewTimer(d.maxWait)
	defer timer.Stop()
	select {
	case d.inbox <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue notification for %s: %w", originalShareID, ctx.Err())
	case <-timer.C:
		return fmt.Errorf("enqueue notification for %s: %w", originalShareID, ErrInboxFull)
	}
}

// Inbox exposes the event channel to the worker.
func (d *Dispatcher) Inbox() <-chan Event {
	return d.inbox
}

// Worker drains a dispatcher inbox into a sink.
type Worker struct {
	sink   Sink
	topic  string
	inbox  <-chan Event
	logger *slog.Logger
}

// NewWorker constructs a worker bound to one topic.
func NewWorker(sink Sink, topic string, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{sink: sink, topic: topic, inbox: inbox, logger: logger}
}

// Run publishes events until the context is cancelled. Publish failures are
// logged and the event is dropped; the reprocessing sweep is the safety net.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			value, err := json.Marshal(event)
			if err != nil {
				w.logger.Error("encode notification", "error", err)
				continue
			}
			if err := w.sink.Publish(ctx, w.topic, []byte(event.OriginalShareID), value); err != nil {
				w.logger.Error("publish notification",
					"original_share_id", event.OriginalShareID,
					"error", err,
				)
			}
		}
	}
}
