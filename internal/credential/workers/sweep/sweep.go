// Package sweep schedules the periodic expiry transition of lapsed credentials.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const DefaultInterval = 15 * time.Minute

// Expirer transitions every lapsed credential to expired and reports how many moved.
type Expirer interface {
	ExpireLapsed(ctx context.Context) (int, error)
}

// Worker runs the sweep on a fixed interval. Runs never overlap: a run still in
// progress when the next tick fires causes that tick to be skipped.
type Worker struct {
	expirer    Expirer
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) { w.interval = d }
}

// WithRunTimeout bounds a single run. Zero means the run is bounded only by Stop.
func WithRunTimeout(d time.Duration) Option {
	return func(w *Worker) { w.runTimeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func New(expirer Expirer, opts ...Option) (*Worker, error) {
	if expirer == nil {
		return nil, errors.New("expirer is required")
	}
	w := &Worker{
		expirer:  expirer,
		interval: DefaultInterval,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}
	return w, nil
}

// Start schedules the sweep, running it once immediately. It is an error to start twice.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return errors.New("sweep worker already started")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	_, err = sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("expiry sweep failed", "error", err)
			}
		}),
		gocron.WithName("credential-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		_ = sched.Shutdown()
		return err
	}

	sched.Start()
	w.scheduler = sched
	w.cancel = cancel
	w.logger.Info("expiry sweep scheduled", "interval", w.interval.String())
	return nil
}

// RunOnce executes one sweep synchronously.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if w.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.runTimeout)
		defer cancel()
	}
	start := time.Now()
	expired, err := w.expirer.ExpireLapsed(ctx)
	if err != nil {
		return expired, err
	}
	if expired > 0 {
		w.logger.Info("expiry sweep completed",
			"expired", expired,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return expired, nil
}

// Stop cancels an in-flight run and waits for the scheduler to drain.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler == nil {
		return nil
	}
	w.cancel()
	err := w.scheduler.Shutdown()
	w.scheduler = nil
	w.cancel = nil
	return err
}
