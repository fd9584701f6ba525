// Package branchscope analyses remote git branches on demand.
//
// A request names a branch of a remote repository. If a stored report still
// matches the remote head it is returned at once; otherwise the branch is
// cloned (or pulled, when a cached tree exists), analysed with an external
// tool and persisted. Concurrent requests for the same branch share a
// single run, and every run publishes its progress.
//
// Basic usage:
//
//	client, err := branchscope.New(
//	    branchscope.WithSQLite(".branchscope/data.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	key, err := client.AddTask(ctx, "github.com", "golang", "go", "", "cli")
//	for s := range client.Subscribe(ctx, key) {
//	    fmt.Println(s.Kind())
//	}
package branchscope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helixml/branchscope/application/service"
	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/domain/status"
	"github.com/helixml/branchscope/infrastructure/analysis"
	"github.com/helixml/branchscope/infrastructure/diskcache"
	"github.com/helixml/branchscope/infrastructure/git"
	"github.com/helixml/branchscope/infrastructure/persistence"
	"github.com/helixml/branchscope/infrastructure/tracking"
	"github.com/helixml/branchscope/internal/database"
	"github.com/helixml/branchscope/internal/metrics"
)

// Client is the main entry point for the branchscope library.
// The background worker starts automatically on creation.
type Client struct {
	db         database.Database
	statuses   *status.Map
	resolver   *git.Resolver
	store      persistence.BranchStore
	cache      *diskcache.Cache
	pipeline   *service.Pipeline
	coalescer  *service.Coalescer
	queue      *service.Queue
	worker     *service.Worker
	publisher  *service.Publisher
	statistics *service.Statistics
	metrics    *metrics.Metrics

	closers []io.Closer
	logger  *slog.Logger
	closed  atomic.Bool
	mu      sync.Mutex
}

// New creates a new Client with the given options.
// The background worker is started automatically.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.dbURL == "" {
		return nil, ErrNoDatabase
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.metrics
	if m == nil {
		m = metrics.New()
	}

	// Cached trees live in memory only, so leftovers from a previous
	// process are unreachable.
	root := cfg.workspaceRoot()
	if err := diskcache.ResetRoot(root); err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}

	ctx := context.Background()
	db, err := database.NewDatabase(ctx, cfg.dbURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pool := cfg.dbPool
	if err := db.ConfigurePool(pool.MaxOpen(), pool.MaxIdle(), pool.MaxLifetime()); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("configure pool: %w", err), errClose)
	}
	if err := persistence.AutoMigrate(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("auto migrate: %w", err), errClose)
	}
	if err := persistence.ValidateSchema(db); err != nil {
		errClose := db.Close()
		return nil, errors.Join(fmt.Errorf("validate schema: %w", err), errClose)
	}

	statuses := status.NewMap(logger)

	// Progress arrives once per stderr chunk; the log sees at most one
	// update per second per branch.
	logCooldown := tracking.NewCooldown(tracking.NewLoggingReporter(logger), time.Second)
	statuses.Subscribe(logCooldown)
	closers := append(cfg.closers, logCooldown)

	resolver := git.NewResolver(
		git.WithResolverBinary(cfg.gitBinary),
		git.WithTTL(cfg.remoteTTL),
		git.WithResolverLogger(logger),
	)
	executor := git.NewExecutor(statuses,
		git.WithBinary(cfg.gitBinary),
		git.WithExecutorMetrics(m),
		git.WithExecutorLogger(logger),
	)
	analyzer := analysis.New(
		analysis.WithBinary(cfg.analyzerBinary),
		analysis.WithArgs(cfg.analyzerArgs...),
		analysis.WithMetrics(m),
		analysis.WithLogger(logger),
	)
	cache := diskcache.New(cfg.cacheCapacity,
		diskcache.WithMetrics(m),
		diskcache.WithLogger(logger),
	)
	store := persistence.NewBranchStore(db)

	pipeline := service.NewPipeline(service.PipelineDeps{
		Statuses:      statuses,
		Remote:        resolver,
		Store:         store,
		Cache:         cache,
		Git:           executor,
		Analyzer:      analyzer,
		Heads:         git.NewHeadReader(),
		WorkspaceRoot: root,
	},
		service.WithRetryPolicy(cfg.retry),
		service.WithStatistics(cfg.trackStatistics),
		service.WithPipelineMetrics(m),
		service.WithPipelineLogger(logger),
	)

	coalescer := service.NewCoalescer(m)
	queue := service.NewQueue(statuses, m, logger)
	worker := service.NewWorker(queue, coalescer, pipeline, statuses, logger)

	client := &Client{
		db:        db,
		statuses:  statuses,
		resolver:  resolver,
		store:     store,
		cache:     cache,
		pipeline:  pipeline,
		coalescer: coalescer,
		queue:     queue,
		worker:    worker,
		publisher: service.NewPublisher(statuses,
			service.WithStreamInterval(cfg.streamInterval),
			service.WithAwait(cfg.awaitSamples, cfg.awaitEvery, cfg.awaitBound),
		),
		statistics: service.NewStatistics(persistence.NewStatisticsStore(db)),
		metrics:    m,
		closers:    closers,
		logger:     logger,
	}

	worker.Start(ctx)
	logger.Info("branchscope client started",
		slog.String("workspace", root),
		slog.String("git", cfg.gitBinary),
		slog.String("analyzer", analyzer.String()),
	)
	return client, nil
}

// AddTask accepts a request to analyse a branch and returns its unique
// name. An empty branch means the remote's default branch. A request for a
// branch that is already queued is merged into the queued one.
func (c *Client) AddTask(ctx context.Context, host, owner, repository, branchName, requester string) (string, error) {
	task, err := c.task(ctx, host, owner, repository, branchName, requester)
	if err != nil {
		return "", err
	}
	c.queue.Enqueue(ctx, task)
	return task.UniqueName(), nil
}

// RequestInfo accepts a request like AddTask and answers with what is known
// right now: Done when the stored report matches the remote head, Previous
// when a stored report is outdated, otherwise the current status.
func (c *Client) RequestInfo(ctx context.Context, host, owner, repository, branchName, requester string) (string, status.Status, error) {
	task, err := c.task(ctx, host, owner, repository, branchName, requester)
	if err != nil {
		return "", status.Status{}, err
	}
	key := task.UniqueName()
	c.queue.Enqueue(ctx, task)

	ref := task.Reference()
	remoteCommit, err := c.resolver.LastCommit(ctx, ref.URL(), ref.Branch())
	if err != nil {
		return key, status.Status{}, err
	}

	stored, err := c.store.Find(ctx, ref)
	switch {
	case errors.Is(err, branch.ErrNotFound):
		current, ok := c.statuses.Get(key)
		if !ok {
			current = status.Ready()
		}
		return key, current, nil
	case err != nil:
		return key, status.Status{}, fmt.Errorf("lookup %s: %w", key, err)
	case stored.IsFresh(ref.Branch(), remoteCommit):
		return key, status.Done(stored.Report()), nil
	default:
		return key, status.Previous(stored.UpdatedAt(), stored.LastCommit(), stored.Report()), nil
	}
}

// CurrentStatus returns the status of a unique name.
func (c *Client) CurrentStatus(key string) (status.Status, bool) {
	return c.publisher.Current(key)
}

// Subscribe streams status changes for a unique name until a terminal
// status or until ctx ends.
func (c *Client) Subscribe(ctx context.Context, key string) <-chan status.Status {
	return c.publisher.Subscribe(ctx, key)
}

// Await waits a bounded time for a terminal status. It returns
// ErrStillProcessing when the analysis has not finished yet.
func (c *Client) Await(ctx context.Context, key string) (status.Status, error) {
	return c.publisher.Await(ctx, key)
}

// RemoteBranches lists the branches of a remote repository.
func (c *Client) RemoteBranches(ctx context.Context, host, owner, repository string) (git.Branches, error) {
	ref, err := c.reference(host, owner, repository, "")
	if err != nil {
		return git.Branches{}, err
	}
	return c.resolver.AllBranches(ctx, ref.URL())
}

// DefaultBranchRemote returns the default branch of a remote repository.
func (c *Client) DefaultBranchRemote(ctx context.Context, host, owner, repository string) (string, error) {
	ref, err := c.reference(host, owner, repository, "")
	if err != nil {
		return "", err
	}
	return c.resolver.DefaultBranch(ctx, ref.URL())
}

// LastCommitRemote returns the head commit of a remote branch.
func (c *Client) LastCommitRemote(ctx context.Context, host, owner, repository, branchName string) (string, error) {
	ref, err := c.reference(host, owner, repository, branchName)
	if err != nil {
		return "", err
	}
	return c.resolver.LastCommit(ctx, ref.URL(), ref.Branch())
}

// Refresh runs the pipeline for a branch immediately, bypassing the queue,
// against a freshly resolved remote head. It fails with ErrConflict when a
// run for the branch is already in flight; requests arriving during the
// refresh join it.
func (c *Client) Refresh(ctx context.Context, host, owner, repository, branchName, requester string) (service.Result, error) {
	task, err := c.task(ctx, host, owner, repository, branchName, requester)
	if err != nil {
		return service.Result{}, err
	}
	key := task.UniqueName()

	lease, err := c.coalescer.TryAcquire(key)
	if err != nil {
		return service.Result{}, err
	}
	c.statuses.Restart(ctx, key)
	c.resolver.Invalidate(task.Reference().URL())

	result, err := lease.Run(ctx, func(ctx context.Context) (service.Result, error) {
		return c.pipeline.Process(ctx, task)
	})
	if errors.Is(err, service.ErrPanicked) {
		c.statuses.Set(ctx, key, status.Failed(err.Error()))
	}
	return result, err
}

// Statistics returns the ranking queries over analysis history.
func (c *Client) Statistics() *service.Statistics {
	return c.statistics
}

// Metrics returns the metrics registry the client records into.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// Idle reports whether nothing is queued or running.
func (c *Client) Idle() bool {
	return c.queue.Len() == 0 && c.coalescer.Len() == 0
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Close stops the worker, waits for running analyses and releases all
// resources.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.worker.Stop()

	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	c.cache.Purge()

	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	c.logger.Info("branchscope client closed")
	return errors.Join(errs...)
}

func (c *Client) reference(host, owner, repository, branchName string) (branch.Reference, error) {
	if c.closed.Load() {
		return branch.Reference{}, ErrClientClosed
	}
	ref := branch.NewReference(host, owner, repository, branchName)
	if err := ref.Validate(); err != nil {
		return branch.Reference{}, err
	}
	return ref, nil
}

// task builds a Task, resolving the default branch. An empty branch name
// is replaced by it.
func (c *Client) task(ctx context.Context, host, owner, repository, branchName, requester string) (branch.Task, error) {
	ref, err := c.reference(host, owner, repository, branchName)
	if err != nil {
		return branch.Task{}, err
	}
	defaultBranch, err := c.resolver.DefaultBranch(ctx, ref.URL())
	if err != nil {
		return branch.Task{}, fmt.Errorf("resolve default branch of %s: %w", ref.Path(), err)
	}
	if !ref.HasBranch() {
		ref = ref.WithBranch(defaultBranch)
	}
	return branch.NewTask(ref, defaultBranch, requester), nil
}
