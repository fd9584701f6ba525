package service

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/domain/status"
	"github.com/helixml/branchscope/infrastructure/persistence"
	"github.com/helixml/branchscope/internal/testdb"
)

const testSize = 40960

type pipelineHarness struct {
	statuses *status.Map
	remote   *fakeRemote
	git      *fakeGit
	analyzer *fakeAnalyzer
	heads    *fakeHeads
	store    *countingStore
	cache    *fakeCache
	root     string
	pipeline *Pipeline
}

func newPipelineHarness(t *testing.T, capacity uint64) *pipelineHarness {
	t.Helper()
	db := testdb.New(t)
	statuses := status.NewMap(nil)
	h := &pipelineHarness{
		statuses: statuses,
		remote:   &fakeRemote{commits: map[string]string{"main": "abc123", "feature": "fff000"}},
		git:      &fakeGit{statuses: statuses},
		analyzer: &fakeAnalyzer{report: []byte("Go 3 files\n")},
		heads:    &fakeHeads{commit: "abc123"},
		store:    &countingStore{Store: persistence.NewBranchStore(db)},
		cache:    newFakeCache(capacity),
		root:     t.TempDir(),
	}
	h.pipeline = NewPipeline(PipelineDeps{
		Statuses:      statuses,
		Remote:        h.remote,
		Store:         h.store,
		Cache:         h.cache,
		Git:           h.git,
		Analyzer:      h.analyzer,
		Heads:         h.heads,
		WorkspaceRoot: h.root,
	},
		WithSizer(func(string) (int64, error) { return testSize, nil }),
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	)
	return h
}

func (h *pipelineHarness) rootEntries(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(h.root)
	require.NoError(t, err)
	return len(entries)
}

func mainTask(branchName string) branch.Task {
	ref := branch.NewReference("github.com", "acme", "widgets", branchName)
	return branch.NewTask(ref, "main", "tester")
}

func TestPipeline_AbsentBranchIsClonedAndPersisted(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	task := mainTask("main")

	result, err := h.pipeline.Process(ctx, task)
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpdated, result.Outcome)
	assert.Equal(t, "abc123", result.Record.LastCommit())
	assert.Equal(t, int64(testSize), result.Record.SizeBytes())
	assert.Equal(t, "Go 3 files\n", string(result.Report()))
	assert.Equal(t, int64(1), h.git.clones.Load())
	assert.Equal(t, int64(1), h.store.visits.Load())

	got, ok := h.statuses.Get(task.UniqueName())
	require.True(t, ok)
	assert.Equal(t, status.KindDone, got.Kind())
	assert.Equal(t, "Go 3 files\n", string(got.Report()))

	stored, err := h.store.Find(ctx, task.Reference())
	require.NoError(t, err)
	assert.Equal(t, "abc123", stored.LastCommit())
	assert.Equal(t, "main", stored.Repository().DefaultBranch())

	entry, ok := h.cache.get(task.UniqueName())
	require.True(t, ok, "default branch should be cached")
	assert.Equal(t, uint64(testSize), entry.Size)
	assert.DirExists(t, entry.Dir)
}

func TestPipeline_FreshRecordSkipsAllWork(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	task := mainTask("main")

	_, err := h.pipeline.Process(ctx, task)
	require.NoError(t, err)

	result, err := h.pipeline.Process(ctx, task)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFresh, result.Outcome)
	assert.Equal(t, int64(1), h.git.clones.Load())
	assert.Equal(t, int64(0), h.git.pulls.Load())
	assert.Equal(t, int64(1), h.analyzer.calls.Load())
	assert.Equal(t, int64(1), h.store.saves.Load())
	assert.Equal(t, int64(2), h.store.visits.Load(), "fresh runs still count as visits")

	got, _ := h.statuses.Get(task.UniqueName())
	assert.Equal(t, status.KindDone, got.Kind())
}

func TestPipeline_StaleDefaultBranchIsPulled(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	task := mainTask("main")

	first, err := h.pipeline.Process(ctx, task)
	require.NoError(t, err)

	h.remote.set("main", "def456")
	h.heads.set("def456")
	h.analyzer.report = []byte("Go 4 files\n")

	second, err := h.pipeline.Process(ctx, task)
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpdated, second.Outcome)
	assert.Equal(t, int64(1), h.git.clones.Load())
	assert.Equal(t, int64(1), h.git.pulls.Load())
	assert.Equal(t, first.Record.ID(), second.Record.ID(), "branch row is updated in place")
	assert.Equal(t, "def456", second.Record.LastCommit())
	assert.Equal(t, "Go 4 files\n", string(second.Report()))
	assert.Equal(t, 1, h.rootEntries(t), "only the cached tree remains")
}

func TestPipeline_NonDefaultBranchIsNotCached(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	h.heads.set("fff000")
	task := mainTask("feature")

	result, err := h.pipeline.Process(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, "fff000", result.Record.LastCommit())

	_, ok := h.cache.get(task.UniqueName())
	assert.False(t, ok)
	assert.Equal(t, 0, h.rootEntries(t))
}

func TestPipeline_OversizedTreeIsReleased(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, testSize-1)
	task := mainTask("main")

	_, err := h.pipeline.Process(ctx, task)
	require.NoError(t, err)

	_, ok := h.cache.get(task.UniqueName())
	assert.False(t, ok)
	assert.Equal(t, 0, h.rootEntries(t))
}

func TestPipeline_CloneFailureEndsInError(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	h.git.cloneErr = errBoom
	task := mainTask("main")

	_, err := h.pipeline.Process(ctx, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, branch.ErrSubprocess)

	got, _ := h.statuses.Get(task.UniqueName())
	assert.Equal(t, status.KindError, got.Kind())
	assert.Contains(t, got.Message(), "fatal: not found")
	assert.Equal(t, 0, h.rootEntries(t))
	assert.Equal(t, int64(0), h.store.saves.Load())
}

func TestPipeline_PullFailureEndsInError(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	task := mainTask("main")

	_, err := h.pipeline.Process(ctx, task)
	require.NoError(t, err)

	h.remote.set("main", "def456")
	h.git.pullErr = errBoom

	_, err = h.pipeline.Process(ctx, task)
	require.Error(t, err)

	got, _ := h.statuses.Get(task.UniqueName())
	assert.Equal(t, status.KindError, got.Kind())
	assert.Equal(t, 0, h.rootEntries(t), "a failed pull drops the cached tree")

	stored, err := h.store.Find(ctx, task.Reference())
	require.NoError(t, err)
	assert.Equal(t, "abc123", stored.LastCommit(), "stored record is untouched")
}

func TestPipeline_RemoteFailureEndsInError(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	h.remote.err = branch.ErrRemoteUnavailable
	task := mainTask("main")

	_, err := h.pipeline.Process(ctx, task)
	assert.ErrorIs(t, err, branch.ErrRemoteUnavailable)
	assert.Equal(t, int64(0), h.git.clones.Load())

	got, _ := h.statuses.Get(task.UniqueName())
	assert.Equal(t, status.KindError, got.Kind())
}

func TestPipeline_PersistenceIsRetried(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	h.store.failFor.Store(1)

	result, err := h.pipeline.Process(ctx, mainTask("main"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), h.store.saves.Load())
	assert.Equal(t, "abc123", result.Record.LastCommit())
}

func TestPipeline_PersistenceExhaustion(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	h.store.failFor.Store(100)
	task := mainTask("main")

	_, err := h.pipeline.Process(ctx, task)
	assert.ErrorIs(t, err, branch.ErrPersistenceUnavailable)
	assert.Equal(t, int64(3), h.store.saves.Load())
	assert.Equal(t, 0, h.rootEntries(t))

	got, _ := h.statuses.Get(task.UniqueName())
	assert.Equal(t, status.KindError, got.Kind())
}

func TestPipeline_StatisticsCanBeDisabled(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	WithStatistics(false)(h.pipeline)

	_, err := h.pipeline.Process(ctx, mainTask("main"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.store.visits.Load())
}

type doneRecorder struct {
	mu      sync.Mutex
	reports [][]byte
}

func (d *doneRecorder) OnChange(_ context.Context, _ string, s status.Status) error {
	if s.Kind() != status.KindDone {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = append(d.reports, s.Report())
	return nil
}

func TestPipeline_ConcurrentRequestsShareOneRun(t *testing.T) {
	ctx := context.Background()
	h := newPipelineHarness(t, 1<<30)
	h.git.delay = 500 * time.Millisecond
	done := &doneRecorder{}
	h.statuses.Subscribe(done)
	coalescer := NewCoalescer(nil)
	task := mainTask("main")
	key := task.UniqueName()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Result, callers)
	shared := make([]bool, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], shared[i], errs[i] = coalescer.Do(ctx, key, func(ctx context.Context) (Result, error) {
				return h.pipeline.Process(ctx, task)
			})
		}()
	}
	require.Eventually(t, func() bool { return coalescer.Waiters(key) == callers }, time.Second, time.Millisecond,
		"every caller joins while the clone is running")
	wg.Wait()

	assert.Equal(t, int64(1), h.git.clones.Load())
	assert.Equal(t, int64(1), h.analyzer.calls.Load())
	assert.Equal(t, int64(1), h.store.saves.Load())

	sharedCount := 0
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, OutcomeUpdated, results[i].Outcome)
		assert.Equal(t, results[0].Record.ID(), results[i].Record.ID())
		assert.Equal(t, "Go 3 files\n", string(results[i].Report()))
		if shared[i] {
			sharedCount++
		}
	}
	assert.Equal(t, callers-1, sharedCount)

	done.mu.Lock()
	defer done.mu.Unlock()
	require.Len(t, done.reports, 1, "one run publishes one Done")
	assert.Equal(t, "Go 3 files\n", string(done.reports[0]))
}
