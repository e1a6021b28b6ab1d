// Package publisher persists audit events as outbox entries so they are
// relayed to the broker alongside credential events.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	dErrors "fedcred/pkg/domain-errors"
	audit "fedcred/pkg/platform/audit"
	"fedcred/pkg/platform/audit/outbox"
)

// Publisher turns audit events into outbox entries keyed by credential id,
// so a credential's audit trail is relayed in order with its other events.
type Publisher struct {
	store   outbox.Appender
	logger  *slog.Logger
	now     func() time.Time
	queue   chan audit.Event
	done    chan struct{}
	closed  sync.Once
	dropped atomic.Int64
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer queues up to size events and appends them from a background
// goroutine. Emit never blocks in this mode; a full queue drops the event.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		if size > 0 {
			p.queue = make(chan audit.Event, size)
		}
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPublisher(store outbox.Appender, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.DiscardHandler), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.queue != nil {
		p.done = make(chan struct{})
		go p.drain()
	}
	return p
}

func (p *Publisher) drain() {
	defer close(p.done)
	for event := range p.queue {
		if err := p.append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"error", err,
				"action", event.Action,
				"credential_id", event.CredentialID,
			)
		}
	}
}

// Emit records event. Synchronous publishers return the store error.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	event.Timestamp = event.Timestamp.UTC()
	if p.queue == nil {
		return p.append(ctx, event)
	}

	select {
	case p.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.dropped.Add(1)
		p.logger.Warn("audit queue full, event dropped",
			"action", event.Action,
			"credential_id", event.CredentialID,
		)
		return dErrors.New(dErrors.CodeInternal, "audit queue full")
	}
}

// Dropped counts events rejected because the async queue was full.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting events and waits for queued ones to be written.
// It is safe to call more than once.
func (p *Publisher) Close() {
	if p.queue == nil {
		return
	}
	p.closed.Do(func() { close(p.queue) })
	<-p.done
}

func (p *Publisher) append(ctx context.Context, event audit.Event) error {
	entry, err := outbox.NewJSONEntry(audit.AggregateType, aggregateKey(event), "audit."+event.Action, event, event.Timestamp)
	if err != nil {
		return err
	}
	return p.store.Append(ctx, entry)
}

// aggregateKey groups events that concern no single credential (sweeps, exports)
// under their action name.
func aggregateKey(event audit.Event) string {
	if event.CredentialID != "" {
		return event.CredentialID
	}
	return "action:" + event.Action
}
