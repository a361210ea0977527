package batchqueue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/progress"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultStaleAfter   = 30 * time.Minute
	DefaultMaxAttempts  = 3
)

// Source is the queue as seen by the worker.
type Source interface {
	Claim(ctx context.Context) (*Batch, error)
	Finish(ctx context.Context, id string, summary *domain.Summary, runErr error) error
	RequeueStale(ctx context.Context, olderThan time.Duration, maxAttempts int) (int64, error)
}

type Planner interface {
	Plan(ctx context.Context, req domain.BatchRequest) (*domain.BatchRun, error)
}

type Runner interface {
	Run(ctx context.Context, run *domain.BatchRun, sink progress.Sink) (*domain.Summary, error)
}

// SinkFactory opens the event sink of one batch.
type SinkFactory func(batchID string) progress.Sink

// Worker claims queued batches one at a time and runs them through the engine.
type Worker struct {
	Queue   Source
	Planner Planner
	Runner  Runner
	Sinks   SinkFactory
	Logger  zerolog.Logger

	PollInterval time.Duration
	StaleAfter   time.Duration
	MaxAttempts  int
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	poll := w.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	w.Logger.Info().Msg("worker: started")
	w.requeue(ctx)
	lastRequeue := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := w.ProcessOne(ctx)
		if err != nil {
			w.Logger.Error().Err(err).Msg("worker: failed to claim batch")
		}
		if ok {
			continue
		}
		if time.Since(lastRequeue) > w.staleAfter()/2 {
			w.requeue(ctx)
			lastRequeue = time.Now()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

func (w *Worker) staleAfter() time.Duration {
	if w.StaleAfter > 0 {
		return w.StaleAfter
	}
	return DefaultStaleAfter
}

func (w *Worker) requeue(ctx context.Context) {
	attempts := w.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	n, err := w.Queue.RequeueStale(ctx, w.staleAfter(), attempts)
	if err != nil {
		w.Logger.Warn().Err(err).Msg("worker: requeue stale batches failed")
		return
	}
	if n > 0 {
		w.Logger.Info().Int64("batches", n).Msg("worker: requeued stale batches")
	}
}

// ProcessOne claims and runs at most one batch. It reports whether a batch
// was claimed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	b, err := w.Queue.Claim(ctx)
	if errors.Is(err, ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logger := w.Logger.With().Str("batch_id", b.ID).Str("project_id", b.ProjectID).Logger()
	logger.Info().Int("attempt", b.Attempts).Msg("worker: picked batch")

	summary, runErr := w.execute(ctx, b)
	if runErr != nil {
		logger.Warn().Err(runErr).Msg("worker: batch failed")
	}
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := w.Queue.Finish(finishCtx, b.ID, summary, runErr); err != nil {
		logger.Error().Err(err).Msg("worker: update status failed")
	}
	return true, nil
}

func (w *Worker) execute(ctx context.Context, b *Batch) (*domain.Summary, error) {
	run, err := w.Planner.Plan(ctx, b.Request)
	if err != nil {
		return nil, err
	}
	// Events are published under the id the caller got back from Enqueue.
	run.ID = b.ID
	return w.Runner.Run(ctx, run, w.Sinks(b.ID))
}
