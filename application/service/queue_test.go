package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/branchscope/domain/status"
)

func TestQueue_DeduplicatesByUniqueName(t *testing.T) {
	ctx := context.Background()
	statuses := status.NewMap(nil)
	q := NewQueue(statuses, nil, nil)

	assert.True(t, q.Enqueue(ctx, mainTask("main")))
	assert.False(t, q.Enqueue(ctx, mainTask("main")))
	assert.True(t, q.Enqueue(ctx, mainTask("feature")))
	assert.Equal(t, 2, q.Len())
	assert.True(t, q.Contains(mainTask("main").UniqueName()))

	got, ok := statuses.Get(mainTask("main").UniqueName())
	require.True(t, ok)
	assert.Equal(t, status.KindReady, got.Kind())

	tasks := q.Drain()
	require.Len(t, tasks, 2)
	assert.Equal(t, "main", tasks[0].Reference().Branch())
	assert.Equal(t, "feature", tasks[1].Reference().Branch())
	assert.Equal(t, 0, q.Len())

	assert.True(t, q.Enqueue(ctx, mainTask("main")), "a drained key can be queued again")
}

func TestQueue_WakeIsCoalesced(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(status.NewMap(nil), nil, nil)

	q.Enqueue(ctx, mainTask("main"))
	q.Enqueue(ctx, mainTask("feature"))

	select {
	case <-q.Wake():
	default:
		t.Fatal("expected a wake signal")
	}
	select {
	case <-q.Wake():
		t.Fatal("wake signals should collapse into one")
	default:
	}
}

func TestQueue_RunningCycleKeepsStatus(t *testing.T) {
	ctx := context.Background()
	statuses := status.NewMap(nil)
	q := NewQueue(statuses, nil, nil)
	key := mainTask("main").UniqueName()

	statuses.Set(ctx, key, status.InProgress("Receiving objects"))
	q.Enqueue(ctx, mainTask("main"))

	got, _ := statuses.Get(key)
	assert.Equal(t, status.KindInProgress, got.Kind())
}
