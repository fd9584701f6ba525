package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/domain/status"
	"github.com/helixml/branchscope/infrastructure/analysis"
	"github.com/helixml/branchscope/infrastructure/diskcache"
	"github.com/helixml/branchscope/internal/log"
	"github.com/helixml/branchscope/internal/metrics"
)

// RemoteState reports the current head commit of a remote branch.
type RemoteState interface {
	LastCommit(ctx context.Context, url, branch string) (string, error)
}

// Materializer brings a branch onto local disk.
type Materializer interface {
	Clone(ctx context.Context, task branch.Task, dir string) (status.Status, error)
	Pull(ctx context.Context, task branch.Task, dir string) (status.Status, error)
}

// Analyzer produces a report for a directory.
type Analyzer interface {
	Analyze(ctx context.Context, repository, dir string) ([]byte, error)
}

// HeadReader reads the commit checked out in a directory.
type HeadReader interface {
	HeadCommit(ctx context.Context, dir string) (string, error)
}

// DiskCache holds working trees of default branches between runs.
type DiskCache interface {
	Take(key string) (diskcache.Entry, bool)
	Insert(key string, entry diskcache.Entry) diskcache.InsertResult
}

// Outcome says how a pipeline run produced its record.
type Outcome string

// Outcome values.
const (
	OutcomeFresh   Outcome = metrics.OutcomeFresh
	OutcomeUpdated Outcome = metrics.OutcomeUpdated
)

// Result is the outcome of one pipeline run.
type Result struct {
	Record  branch.Record
	Outcome Outcome
}

// Report returns the analysed report.
func (r Result) Report() []byte { return r.Record.Report() }

// PipelineDeps are the collaborators of a Pipeline.
type PipelineDeps struct {
	Statuses      *status.Map
	Remote        RemoteState
	Store         branch.Store
	Cache         DiskCache
	Git           Materializer
	Analyzer      Analyzer
	Heads         HeadReader
	WorkspaceRoot string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRetryPolicy sets the persistence retry policy.
func WithRetryPolicy(p RetryPolicy) PipelineOption {
	return func(pl *Pipeline) { pl.retry = p }
}

// WithStatistics enables recording a usage statistic per analysis.
func WithStatistics(enabled bool) PipelineOption {
	return func(pl *Pipeline) { pl.trackStatistics = enabled }
}

// WithPipelineMetrics records run outcomes.
func WithPipelineMetrics(m *metrics.Metrics) PipelineOption {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(pl *Pipeline) {
		if l != nil {
			pl.logger = l
		}
	}
}

// WithSizer replaces the directory size measurement.
func WithSizer(fn func(dir string) (int64, error)) PipelineOption {
	return func(pl *Pipeline) {
		if fn != nil {
			pl.measure = fn
		}
	}
}

// Pipeline decides whether a stored report is current and, if not,
// materializes, analyses and persists the branch.
type Pipeline struct {
	deps            PipelineDeps
	retry           RetryPolicy
	trackStatistics bool
	measure         func(dir string) (int64, error)
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps PipelineDeps, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		deps:            deps,
		retry:           DefaultRetryPolicy(),
		trackStatistics: true,
		measure:         analysis.DirSize,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one analysis cycle for task. The final status is Done with
// the report, or Error with the failure message.
func (p *Pipeline) Process(ctx context.Context, task branch.Task) (Result, error) {
	ctx = log.WithTask(ctx, task.UniqueName())
	key := task.UniqueName()
	start := time.Now()

	result, err := p.process(ctx, task)
	if err != nil {
		p.metrics.ObservePipeline(metrics.OutcomeFailed, time.Since(start))
		p.logger.ErrorContext(ctx, "analysis failed", slog.String("error", err.Error()))
		p.deps.Statuses.Set(ctx, key, status.Failed(err.Error()))
		return Result{}, err
	}

	p.metrics.ObservePipeline(string(result.Outcome), time.Since(start))
	p.deps.Statuses.Set(ctx, key, status.Done(result.Record.Report()))

	// Every answered request counts as a visit, fresh or not.
	if p.trackStatistics {
		if err := p.deps.Store.RecordVisit(ctx, result.Record.ID(), task.Requester()); err != nil {
			p.logger.WarnContext(ctx, "failed to record statistic", slog.String("error", err.Error()))
		}
	}
	p.logger.InfoContext(ctx, "analysis finished",
		slog.String("outcome", string(result.Outcome)),
		slog.String("commit", result.Record.LastCommit()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (p *Pipeline) process(ctx context.Context, task branch.Task) (Result, error) {
	ref := task.Reference()

	remoteCommit, err := p.deps.Remote.LastCommit(ctx, ref.URL(), ref.Branch())
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", ref.UniqueName(), err)
	}

	stored, err := p.deps.Store.Find(ctx, ref)
	switch {
	case errors.Is(err, branch.ErrNotFound):
		return p.refresh(ctx, task, false)
	case err != nil:
		return Result{}, fmt.Errorf("lookup %s: %w", ref.UniqueName(), err)
	case stored.IsFresh(ref.Branch(), remoteCommit):
		p.logger.DebugContext(ctx, "stored report is current", slog.String("commit", remoteCommit))
		return Result{Record: stored, Outcome: OutcomeFresh}, nil
	default:
		p.logger.InfoContext(ctx, "stored report is stale",
			slog.String("stored", stored.LastCommit()),
			slog.String("remote", remoteCommit),
		)
		return p.refresh(ctx, task, true)
	}
}

// refresh materializes the branch, analyses it and persists the result.
func (p *Pipeline) refresh(ctx context.Context, task branch.Task, stale bool) (Result, error) {
	key := task.UniqueName()

	ws, err := p.workspace(ctx, task, stale)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			p.logger.WarnContext(ctx, "failed to release workspace", slog.String("error", err.Error()))
		}
	}()

	repository := task.Reference().Path()
	report, err := p.deps.Analyzer.Analyze(ctx, repository, ws.Dir())
	if err != nil {
		return Result{}, err
	}
	size, err := p.measure(ws.Dir())
	if err != nil {
		return Result{}, err
	}
	commit, err := p.deps.Heads.HeadCommit(ctx, ws.Dir())
	if err != nil {
		return Result{}, fmt.Errorf("read local commit: %w", err)
	}

	analysisResult := branch.NewAnalysis(task, commit, report, size)
	record, err := retryPersistence(ctx, p.retry, p.metrics, p.logger, func() (branch.Record, error) {
		return p.deps.Store.SaveAnalysis(ctx, analysisResult)
	})
	if err != nil {
		return Result{}, err
	}

	if task.IsDefaultBranch() {
		entry := diskcache.Entry{Dir: ws.Dir(), Size: uint64(size)}
		if p.deps.Cache.Insert(key, entry) == diskcache.Accepted {
			ws.Promote()
		} else {
			p.logger.DebugContext(ctx, "working tree not cached", slog.String("size", humanize.Bytes(entry.Size)))
		}
	}

	return Result{Record: record, Outcome: OutcomeUpdated}, nil
}

// workspace returns a directory holding the branch at its remote head,
// pulling a cached clone when one exists.
func (p *Pipeline) workspace(ctx context.Context, task branch.Task, stale bool) (*diskcache.Workspace, error) {
	key := task.UniqueName()

	if stale {
		if entry, ok := p.deps.Cache.Take(key); ok {
			ws := diskcache.AdoptWorkspace(entry.Dir)
			if _, err := p.deps.Git.Pull(ctx, task, ws.Dir()); err != nil {
				_ = ws.Release()
				return nil, err
			}
			return ws, nil
		}
	}

	ws, err := diskcache.NewWorkspace(p.deps.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	if _, err := p.deps.Git.Clone(ctx, task, ws.Dir()); err != nil {
		_ = ws.Release()
		return nil, err
	}
	return ws, nil
}
