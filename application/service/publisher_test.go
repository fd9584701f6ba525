package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/branchscope/domain/status"
)

func TestPublisher_SubscribeStreamsUntilTerminal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	statuses := status.NewMap(nil)
	p := NewPublisher(statuses, WithStreamInterval(5*time.Millisecond))
	key := "k"

	statuses.Restart(ctx, key)
	updates := p.Subscribe(ctx, key)

	first := <-updates
	assert.Equal(t, status.KindReady, first.Kind())

	statuses.Set(ctx, key, status.InProgress("Receiving objects: 50%"))
	second := <-updates
	assert.Equal(t, status.KindInProgress, second.Kind())

	statuses.Set(ctx, key, status.Done([]byte("report")))
	var last status.Status
	for s := range updates {
		last = s
	}
	assert.Equal(t, status.KindDone, last.Kind())
}

func TestPublisher_SubscribeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	statuses := status.NewMap(nil)
	statuses.Restart(ctx, "k")
	p := NewPublisher(statuses, WithStreamInterval(time.Millisecond))

	updates := p.Subscribe(ctx, "k")
	first := <-updates
	require.Equal(t, status.KindReady, first.Kind())
	cancel()

	select {
	case _, ok := <-updates:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription did not close")
	}
}

func TestPublisher_SubscribeUnknownKeyCloses(t *testing.T) {
	p := NewPublisher(status.NewMap(nil), WithStreamInterval(time.Millisecond))

	updates := p.Subscribe(context.Background(), "never-requested")
	select {
	case s, ok := <-updates:
		assert.False(t, ok, "unexpected status %v", s)
	case <-time.After(time.Second):
		t.Fatal("subscription for an unknown key stayed open")
	}
}

func TestPublisher_AwaitReturnsTerminal(t *testing.T) {
	ctx := context.Background()
	statuses := status.NewMap(nil)
	p := NewPublisher(statuses, WithAwait(5, 5*time.Millisecond, time.Second))

	statuses.Restart(ctx, "k")
	go func() {
		time.Sleep(8 * time.Millisecond)
		statuses.Set(ctx, "k", status.Failed("clone failed"))
	}()

	got, err := p.Await(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, status.KindError, got.Kind())
}

func TestPublisher_AwaitGivesUp(t *testing.T) {
	ctx := context.Background()
	statuses := status.NewMap(nil)
	p := NewPublisher(statuses, WithAwait(3, time.Millisecond, time.Second))
	statuses.Set(ctx, "k", status.InProgress("Cloning"))

	start := time.Now()
	got, err := p.Await(ctx, "k")
	assert.ErrorIs(t, err, ErrStillProcessing)
	assert.Equal(t, status.KindInProgress, got.Kind())
	assert.Less(t, time.Since(start), time.Second)
}

func TestPublisher_AwaitRespectsBound(t *testing.T) {
	p := NewPublisher(status.NewMap(nil), WithAwait(100, time.Second, 20*time.Millisecond))

	start := time.Now()
	_, err := p.Await(context.Background(), "k")
	assert.ErrorIs(t, err, ErrStillProcessing)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
