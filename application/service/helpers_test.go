package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/domain/status"
	"github.com/helixml/branchscope/infrastructure/diskcache"
)

var errBoom = errors.New("boom")

type fakeRemote struct {
	mu      sync.Mutex
	commits map[string]string
	err     error
}

func (f *fakeRemote) LastCommit(_ context.Context, _ string, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	c, ok := f.commits[name]
	if !ok {
		return "", branch.ErrBranchNotFound
	}
	return c, nil
}

func (f *fakeRemote) set(name, commit string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits[name] = commit
}

type fakeGit struct {
	statuses *status.Map
	clones   atomic.Int64
	pulls    atomic.Int64
	cloneErr error
	pullErr  error
	delay    time.Duration
}

func (f *fakeGit) Clone(ctx context.Context, task branch.Task, dir string) (status.Status, error) {
	f.clones.Add(1)
	return f.run(ctx, task, dir, f.cloneErr, branch.OperationClone)
}

func (f *fakeGit) Pull(ctx context.Context, task branch.Task, dir string) (status.Status, error) {
	f.pulls.Add(1)
	return f.run(ctx, task, dir, f.pullErr, branch.OperationPull)
}

func (f *fakeGit) run(ctx context.Context, task branch.Task, dir string, err error, op branch.Operation) (status.Status, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return status.Status{}, ctx.Err()
		}
	}
	if err != nil {
		return status.Status{}, branch.NewSubprocessError(op, task.Reference().Path(), "fatal: not found", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		return status.Status{}, err
	}
	f.statuses.Set(ctx, task.UniqueName(), status.InProgress("Receiving objects: 100%"))
	f.statuses.Set(ctx, task.UniqueName(), status.Cloned())
	return status.Cloned(), nil
}

type fakeAnalyzer struct {
	report []byte
	err    error
	calls  atomic.Int64
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, _ string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeHeads struct {
	mu     sync.Mutex
	commit string
}

func (f *fakeHeads) HeadCommit(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commit, nil
}

func (f *fakeHeads) set(commit string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commit = commit
}

// countingStore wraps a real store and counts writes.
type countingStore struct {
	branch.Store
	saves   atomic.Int64
	visits  atomic.Int64
	failFor atomic.Int64
}

func (s *countingStore) SaveAnalysis(ctx context.Context, a branch.Analysis) (branch.Record, error) {
	s.saves.Add(1)
	if s.failFor.Load() > 0 {
		s.failFor.Add(-1)
		return branch.Record{}, errBoom
	}
	return s.Store.SaveAnalysis(ctx, a)
}

func (s *countingStore) RecordVisit(ctx context.Context, id int64, requester string) error {
	s.visits.Add(1)
	return s.Store.RecordVisit(ctx, id, requester)
}

type fakeCache struct {
	mu       sync.Mutex
	entries  map[string]diskcache.Entry
	capacity uint64
}

func newFakeCache(capacity uint64) *fakeCache {
	return &fakeCache{entries: make(map[string]diskcache.Entry), capacity: capacity}
}

func (c *fakeCache) Take(key string) (diskcache.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	delete(c.entries, key)
	return e, ok
}

func (c *fakeCache) Insert(key string, e diskcache.Entry) diskcache.InsertResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.Size > c.capacity {
		return diskcache.Rejected
	}
	c.entries[key] = e
	return diskcache.Accepted
}

func (c *fakeCache) get(key string) (diskcache.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}
