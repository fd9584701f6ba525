package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/domain/status"
	"github.com/helixml/branchscope/internal/metrics"
)

// Queue holds accepted tasks until the worker dispatches them. A task whose
// unique name is already queued is dropped.
type Queue struct {
	mu       sync.Mutex
	pending  []branch.Task
	queued   map[string]struct{}
	wake     chan struct{}
	statuses *status.Map
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewQueue creates a new queue.
func NewQueue(statuses *status.Map, m *metrics.Metrics, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		queued:   make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		statuses: statuses,
		metrics:  m,
		logger:   logger,
	}
}

// Enqueue adds a task and wakes the worker. It returns false when a task
// with the same unique name is already waiting.
func (q *Queue) Enqueue(ctx context.Context, t branch.Task) bool {
	key := t.UniqueName()

	q.mu.Lock()
	if _, ok := q.queued[key]; ok {
		q.mu.Unlock()
		q.logger.DebugContext(ctx, "task already queued", slog.String("key", key))
		return false
	}
	q.queued[key] = struct{}{}
	q.pending = append(q.pending, t)
	depth := len(q.pending)
	q.mu.Unlock()

	q.statuses.Restart(ctx, key)
	q.metrics.SetQueueDepth(depth)
	q.logger.DebugContext(ctx, "task enqueued",
		slog.String("key", key),
		slog.String("requester", t.Requester()),
	)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Drain removes and returns every queued task in arrival order.
func (q *Queue) Drain() []branch.Task {
	q.mu.Lock()
	tasks := q.pending
	q.pending = nil
	clear(q.queued)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(0)
	return tasks
}

// Wake is signalled after every successful Enqueue.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Contains reports whether a task for key is waiting.
func (q *Queue) Contains(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.queued[key]
	return ok
}

// Len returns the number of waiting tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
