package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fedcred/internal/platform/kafka/producer"
	"fedcred/pkg/platform/audit/outbox"
	"fedcred/pkg/platform/audit/outbox/metrics"
)

// DefaultTopic receives every credential event.
const DefaultTopic = "fedcred.credential.events"

// Publisher is the broker side of the relay.
type Publisher interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Worker polls the outbox and relays pending entries to the broker.
// Delivery is at-least-once: an entry published but not marked is sent again on the next poll.
type Worker struct {
	store        outbox.Store
	publisher    Publisher
	topic        string
	batchSize    int
	pollInterval time.Duration
	retention    time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Worker)

func WithTopic(topic string) Option {
	return func(w *Worker) { w.topic = topic }
}

func WithBatchSize(size int) Option {
	return func(w *Worker) { w.batchSize = size }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

// WithRetention deletes relayed entries older than d after each poll. Zero keeps them.
func WithRetention(d time.Duration) Option {
	return func(w *Worker) { w.retention = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func New(store outbox.Store, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		store:        store,
		publisher:    publisher,
		topic:        DefaultTopic,
		batchSize:    100,
		pollInterval: 200 * time.Millisecond,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the polling loop until Stop is called or ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.drain()
				return
			case <-ticker.C:
				if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
					w.logger.Error("outbox poll failed", "error", err)
				}
			}
		}
	}()
}

// RunOnce relays one batch and returns how many entries were published and marked.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	entries, err := w.store.FetchUnprocessed(ctx, w.batchSize)
	if err != nil {
		if w.metrics != nil {
			w.metrics.IncFailure(metrics.StageFetch)
		}
		return 0, err
	}

	published := 0
	for _, entry := range entries {
		if err := w.publish(ctx, entry); err != nil {
			w.logger.Error("failed to publish outbox entry",
				"id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			if w.metrics != nil {
				w.metrics.IncFailure(metrics.StagePublish)
			}
			continue
		}
		if err := w.store.MarkProcessed(ctx, entry.ID, time.Now()); err != nil {
			w.logger.Error("failed to mark entry as processed", "id", entry.ID, "error", err)
			if w.metrics != nil {
				w.metrics.IncFailure(metrics.StageMark)
			}
			continue
		}
		published++
		if w.metrics != nil {
			w.metrics.IncPublished(entry.EventType)
		}
	}

	if w.retention > 0 {
		pruned, err := w.store.DeleteProcessedBefore(ctx, time.Now().Add(-w.retention))
		if err != nil {
			w.logger.Warn("failed to prune processed outbox entries", "error", err)
			if w.metrics != nil {
				w.metrics.IncFailure(metrics.StagePrune)
			}
		} else if w.metrics != nil {
			w.metrics.AddPruned(pruned)
		}
	}
	if w.metrics != nil {
		w.metrics.Poll.Observe(time.Since(start).Seconds())
		if pending, err := w.store.CountPending(ctx); err == nil {
			w.metrics.SetPending(pending)
		}
	}
	return published, nil
}

func (w *Worker) publish(ctx context.Context, entry *outbox.Entry) error {
	start := time.Now()
	err := w.publisher.Produce(ctx, &producer.Message{
		Topic: w.topic,
		Key:   []byte(entry.AggregateID), // per-credential ordering
		Value: entry.Payload,
		Headers: map[string]string{
			"entry_id":       entry.ID.String(),
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"event_type":     entry.EventType,
		},
	})
	if err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.Publish.Observe(time.Since(start).Seconds())
	}
	return nil
}

// drain relays what is left after shutdown is requested, bounded to 10s.
func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for ctx.Err() == nil {
		n, err := w.RunOnce(ctx)
		if err != nil || n == 0 {
			return
		}
	}
}

// Stop cancels the loop and waits for the drain to finish or ctx to expire.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
