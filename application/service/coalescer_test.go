package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/branchscope/domain/branch"
)

func TestCoalescer_SharesOneRun(t *testing.T) {
	ctx := context.Background()
	c := NewCoalescer(nil)
	key := "github.com/acme/widgets/main"

	var calls atomic.Int64
	release := make(chan struct{})
	fn := func(context.Context) (Result, error) {
		calls.Add(1)
		<-release
		return Result{Outcome: OutcomeUpdated}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Result, callers)
	shared := make([]bool, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], shared[0], _ = c.Do(ctx, key, fn)
	}()
	require.Eventually(t, func() bool { return c.InFlight(key) }, time.Second, time.Millisecond)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], shared[i], _ = c.Do(ctx, key, fn)
		}()
	}
	require.Eventually(t, func() bool { return c.Waiters(key) == callers }, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	sharedCount := 0
	for i := range callers {
		assert.Equal(t, OutcomeUpdated, results[i].Outcome)
		if shared[i] {
			sharedCount++
		}
	}
	assert.Equal(t, callers-1, sharedCount)
	assert.Equal(t, 0, c.Len(), "visit is removed after the last caller leaves")
}

func TestCoalescer_SequentialRunsAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := NewCoalescer(nil)

	var calls int
	fn := func(context.Context) (Result, error) {
		calls++
		return Result{}, nil
	}
	for range 3 {
		_, shared, err := c.Do(ctx, "k", fn)
		require.NoError(t, err)
		assert.False(t, shared)
	}
	assert.Equal(t, 3, calls)
}

func TestCoalescer_WaiterCancellationLeavesRunAlone(t *testing.T) {
	c := NewCoalescer(nil)
	release := make(chan struct{})
	finished := make(chan error, 1)

	go func() {
		_, _, err := c.Do(context.Background(), "k", func(context.Context) (Result, error) {
			<-release
			return Result{}, nil
		})
		finished <- err
	}()
	require.Eventually(t, func() bool { return c.InFlight("k") }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, shared, err := c.Do(ctx, "k", func(context.Context) (Result, error) {
		t.Error("waiter must not run its own function")
		return Result{}, nil
	})
	assert.True(t, shared)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, c.InFlight("k"))

	close(release)
	require.NoError(t, <-finished)
	assert.Equal(t, 0, c.Len())
}

func TestCoalescer_RecoversPanics(t *testing.T) {
	c := NewCoalescer(nil)
	_, _, err := c.Do(context.Background(), "k", func(context.Context) (Result, error) {
		panic("kaboom")
	})
	require.ErrorIs(t, err, ErrPanicked)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, 0, c.Len())
}

func TestCoalescer_TryAcquire(t *testing.T) {
	ctx := context.Background()
	c := NewCoalescer(nil)

	lease, err := c.TryAcquire("k")
	require.NoError(t, err)

	_, err = c.TryAcquire("k")
	assert.ErrorIs(t, err, branch.ErrConflict)

	joined := make(chan error, 1)
	go func() {
		_, shared, err := c.Do(ctx, "k", func(context.Context) (Result, error) {
			return Result{}, errors.New("should not run")
		})
		if !shared {
			err = errors.New("expected to join the lease")
		}
		joined <- err
	}()
	require.Eventually(t, func() bool { return c.Waiters("k") == 2 }, time.Second, time.Millisecond)

	lease.Release(Result{Outcome: OutcomeUpdated}, nil)
	lease.Release(Result{}, errBoom)
	require.NoError(t, <-joined)
	assert.Equal(t, 0, c.Len())

	again, err := c.TryAcquire("k")
	require.NoError(t, err)
	again.Release(Result{}, nil)
}

func TestLease_RunReleasesOnPanic(t *testing.T) {
	ctx := context.Background()
	c := NewCoalescer(nil)

	lease, err := c.TryAcquire("k")
	require.NoError(t, err)

	joined := make(chan error, 1)
	go func() {
		_, _, err := c.Do(ctx, "k", func(context.Context) (Result, error) {
			return Result{}, errors.New("should not run")
		})
		joined <- err
	}()
	require.Eventually(t, func() bool { return c.Waiters("k") == 2 }, time.Second, time.Millisecond)

	_, err = lease.Run(ctx, func(context.Context) (Result, error) {
		panic("analyzer exploded")
	})
	require.ErrorIs(t, err, ErrPanicked)
	assert.ErrorIs(t, <-joined, ErrPanicked, "waiters see the panic as an error")
	assert.False(t, c.InFlight("k"))

	again, err := c.TryAcquire("k")
	require.NoError(t, err, "the key is free again")
	again.Release(Result{}, nil)
}

func TestLease_RunPublishesResult(t *testing.T) {
	c := NewCoalescer(nil)
	lease, err := c.TryAcquire("k")
	require.NoError(t, err)

	result, err := lease.Run(context.Background(), func(context.Context) (Result, error) {
		return Result{Outcome: OutcomeFresh}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFresh, result.Outcome)
	assert.Equal(t, 0, c.Len())
}
