package git

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"code.gitea.io/gitea/modules/git/gitcmd"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/domain/status"
	"github.com/helixml/branchscope/internal/metrics"
)

// Executor runs clone and pull, publishing parsed progress as it arrives.
type Executor struct {
	binary     string
	statuses   *status.Map
	classifier StageClassifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBinary sets the git executable.
func WithBinary(binary string) ExecutorOption {
	return func(e *Executor) {
		if binary != "" {
			e.binary = binary
		}
	}
}

// WithClassifier replaces the marker classifier.
func WithClassifier(c StageClassifier) ExecutorOption {
	return func(e *Executor) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithExecutorMetrics records subprocess durations.
func WithExecutorMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an Executor that publishes into statuses.
func NewExecutor(statuses *status.Map, opts ...ExecutorOption) *Executor {
	e := &Executor{
		binary:     DefaultBinary,
		statuses:   statuses,
		classifier: NewMarkerClassifier(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Clone makes a shallow single-branch clone of the task's repository into dir.
func (e *Executor) Clone(ctx context.Context, task branch.Task, dir string) (status.Status, error) {
	ref := task.Reference()
	cmd := gitcmd.NewCommand("clone", "--progress", "--depth=1").
		AddOptionValues("--branch", ref.Branch()).
		AddDynamicArguments(ref.URL(), dir)
	return e.run(ctx, branch.OperationClone, task, "", cmd)
}

// Pull fast-forwards an existing clone in dir.
func (e *Executor) Pull(ctx context.Context, task branch.Task, dir string) (status.Status, error) {
	cmd := gitcmd.NewCommand("pull", "--ff-only", "--progress", "origin").
		AddDynamicArguments(task.Reference().Branch())
	return e.run(ctx, branch.OperationPull, task, dir, cmd)
}

// run executes cmd in workDir and feeds its stderr through the progress
// parser while it runs.
func (e *Executor) run(ctx context.Context, op branch.Operation, task branch.Task, workDir string, cmd *gitcmd.Command) (status.Status, error) {
	ref := task.Reference()
	key := task.UniqueName()
	logger := e.logger.With(
		slog.String("operation", string(op)),
		slog.String("reference", key),
	)

	if err := useBinary(e.binary); err != nil {
		return status.Status{}, branch.NewSubprocessError(op, ref.Path(), "", err)
	}

	start := time.Now()
	logger.Info("starting git", slog.String("url", ref.URL()), slog.String("dir", workDir))

	tail := newTailBuffer(diagnosticLimit)
	progress := NewProgress(fmt.Sprintf("git %s %s", op, ref.URL()), e.classifier)
	e.publish(ctx, key, progress)

	stderr, stderrWriter := io.Pipe()
	runErr := make(chan error, 1)
	go func() {
		err := cmd.Run(ctx, &gitcmd.RunOpts{
			Dir:    workDir,
			Env:    commandEnv(),
			Stderr: stderrWriter,
		})
		_ = stderrWriter.Close()
		runErr <- err
	}()

	scanner := bufio.NewScanner(io.TeeReader(stderr, tail))
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		if progress.Feed(scanner.Text()) {
			e.publish(ctx, key, progress)
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep the pipe drained so the child can exit.
		_, _ = io.Copy(tail, stderr)
	}

	waitErr := <-runErr
	e.metrics.ObserveSubprocess(string(op), time.Since(start))
	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			waitErr = errors.Join(waitErr, ctxErr)
		}
		logger.Warn("git failed", slog.String("error", waitErr.Error()))
		return status.Status{}, branch.NewSubprocessError(op, ref.Path(), strings.TrimSpace(tail.String()), waitErr)
	}
	if scanErr != nil {
		logger.Warn("reading git progress", slog.String("error", scanErr.Error()))
	}

	logger.Info("git finished", slog.Duration("elapsed", time.Since(start)))
	done := status.Cloned()
	e.statuses.Set(ctx, key, done)
	return done, nil
}

func (e *Executor) publish(ctx context.Context, key string, p *Progress) {
	e.statuses.Set(ctx, key, status.InProgress(p.String()))
}
