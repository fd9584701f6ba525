package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/internal/metrics"
)

// visit tracks one in-flight run for a key. It lives until the run has
// finished and every caller that joined it has left.
type visit struct {
	waiters atomic.Int64
	done    chan struct{}
	result  Result
	err     error
}

// Coalescer runs at most one function per key at a time. Callers arriving
// while a run is in flight wait for it and share its outcome.
type Coalescer struct {
	mu       sync.Mutex
	inflight map[string]*visit
	metrics  *metrics.Metrics
}

// NewCoalescer creates a Coalescer.
func NewCoalescer(m *metrics.Metrics) *Coalescer {
	return &Coalescer{
		inflight: make(map[string]*visit),
		metrics:  m,
	}
}

// Do runs fn for key unless a run is already in flight, in which case it
// waits for that run. shared reports whether the result came from another
// caller's run. A waiter whose ctx ends stops waiting; the run continues.
func (c *Coalescer) Do(ctx context.Context, key string, fn func(context.Context) (Result, error)) (result Result, shared bool, err error) {
	c.mu.Lock()
	if v, ok := c.inflight[key]; ok {
		v.waiters.Add(1)
		c.mu.Unlock()
		c.metrics.CoalescedWaiter()
		defer c.leave(key, v)

		select {
		case <-v.done:
			return v.result, true, v.err
		case <-ctx.Done():
			return Result{}, true, ctx.Err()
		}
	}
	v := c.enter(key)
	c.mu.Unlock()
	defer c.leave(key, v)

	v.result, v.err = runGuarded(ctx, fn)
	close(v.done)
	return v.result, false, v.err
}

// Lease is exclusive ownership of a key obtained through TryAcquire.
type Lease struct {
	c    *Coalescer
	key  string
	v    *visit
	once sync.Once
}

// TryAcquire claims key without waiting. It fails with branch.ErrConflict
// when a run for key is already in flight. Callers arriving through Do
// while the lease is held wait for Release.
func (c *Coalescer) TryAcquire(key string) (*Lease, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[key]; ok {
		return nil, fmt.Errorf("%w: %s", branch.ErrConflict, key)
	}
	return &Lease{c: c, key: key, v: c.enter(key)}, nil
}

// Release publishes the outcome to waiters and gives up the key.
func (l *Lease) Release(result Result, err error) {
	l.once.Do(func() {
		l.v.result, l.v.err = result, err
		close(l.v.done)
		l.c.leave(l.key, l.v)
	})
}

// Run executes fn while holding the lease and releases it with fn's
// outcome. A panic in fn is returned as ErrPanicked.
func (l *Lease) Run(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	result, err := runGuarded(ctx, fn)
	l.Release(result, err)
	return result, err
}

// InFlight reports whether a run for key has not been fully released.
func (c *Coalescer) InFlight(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[key]
	return ok
}

// Waiters returns how many callers currently hold the visit for key,
// including the running one.
func (c *Coalescer) Waiters(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.inflight[key]; ok {
		return v.waiters.Load()
	}
	return 0
}

// Len returns the number of keys in flight.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// enter requires c.mu.
func (c *Coalescer) enter(key string) *visit {
	v := &visit{done: make(chan struct{})}
	v.waiters.Add(1)
	c.inflight[key] = v
	c.metrics.SetInFlight(len(c.inflight))
	return v
}

func (c *Coalescer) leave(key string, v *visit) {
	if v.waiters.Add(-1) > 0 {
		return
	}
	c.mu.Lock()
	if c.inflight[key] == v {
		delete(c.inflight, key)
	}
	c.metrics.SetInFlight(len(c.inflight))
	c.mu.Unlock()
}

func runGuarded(ctx context.Context, fn func(context.Context) (Result, error)) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn(ctx)
}
