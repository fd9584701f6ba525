package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/domain/status"
)

// Processor runs one analysis cycle.
type Processor interface {
	Process(ctx context.Context, task branch.Task) (Result, error)
}

// Worker drains the queue whenever it is woken and runs each task in its
// own goroutine, coalesced by unique name.
type Worker struct {
	queue     *Queue
	coalescer *Coalescer
	processor Processor
	statuses  *status.Map
	logger    *slog.Logger

	cancel  context.CancelFunc
	loop    sync.WaitGroup
	running sync.WaitGroup
	mu      sync.Mutex
}

// NewWorker creates a new queue worker.
func NewWorker(queue *Queue, coalescer *Coalescer, processor Processor, statuses *status.Map, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:     queue,
		coalescer: coalescer,
		processor: processor,
		statuses:  statuses,
		logger:    logger,
	}
}

// Start begins dispatching tasks from the queue.
// The worker runs in a goroutine and can be stopped with Stop().
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, w.cancel = context.WithCancel(ctx)
	w.loop.Add(1)

	go func() {
		defer w.loop.Done()
		w.run(ctx)
	}()

	w.logger.Info("queue worker started")
}

// Stop cancels dispatching and waits for running pipelines to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.loop.Wait()
	w.running.Wait()
	w.logger.Info("queue worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	w.logger.Debug("worker loop started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker loop stopping")
			return
		case <-w.queue.Wake():
			for _, t := range w.queue.Drain() {
				w.dispatch(ctx, t)
			}
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, t branch.Task) {
	w.running.Add(1)
	go func() {
		defer w.running.Done()
		w.execute(ctx, t)
	}()
}

// ProcessPending dispatches every queued task and waits for them, for
// callers that drive the queue without Start.
func (w *Worker) ProcessPending(ctx context.Context) int {
	tasks := w.queue.Drain()
	for _, t := range tasks {
		w.dispatch(ctx, t)
	}
	w.running.Wait()
	return len(tasks)
}

func (w *Worker) execute(ctx context.Context, t branch.Task) {
	key := t.UniqueName()
	_, shared, err := w.coalescer.Do(ctx, key, func(ctx context.Context) (Result, error) {
		// The task may have been queued while a previous run was still in
		// flight; its terminal status belongs to that run.
		w.statuses.Restart(ctx, key)
		return w.executeWithRecovery(ctx, t)
	})
	if err != nil {
		w.logger.Debug("task failed",
			slog.String("key", key),
			slog.Bool("shared", shared),
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.Debug("task completed", slog.String("key", key), slog.Bool("shared", shared))
}

func (w *Worker) executeWithRecovery(ctx context.Context, t branch.Task) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
			w.logger.Error("pipeline panicked",
				slog.String("key", t.UniqueName()),
				slog.Any("panic", r),
			)
			w.statuses.Set(ctx, t.UniqueName(), status.Failed(err.Error()))
		}
	}()
	return w.processor.Process(ctx, t)
}
