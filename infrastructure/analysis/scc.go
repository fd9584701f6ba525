// Package analysis runs the external line and complexity counter over a
// materialized branch.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/internal/metrics"
)

// Defaults for the analyzer command.
const (
	DefaultBinary   = "scc"
	diagnosticLimit = 4096
)

// DefaultArgs are passed before the directory.
var DefaultArgs = []string{"--ci"}

// Analyzer runs scc on a directory and returns its stdout as the report.
type Analyzer struct {
	binary  string
	args    []string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithBinary sets the analyzer executable.
func WithBinary(binary string) Option {
	return func(a *Analyzer) {
		if binary != "" {
			a.binary = binary
		}
	}
}

// WithArgs replaces the arguments placed before the directory.
func WithArgs(args ...string) Option {
	return func(a *Analyzer) {
		a.args = append([]string(nil), args...)
	}
}

// WithMetrics records analyzer durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		binary: DefaultBinary,
		args:   DefaultArgs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the analyzer over dir. repository names the target in errors.
func (a *Analyzer) Analyze(ctx context.Context, repository, dir string) ([]byte, error) {
	args := append(append([]string(nil), a.args...), dir)
	cmd := exec.CommandContext(ctx, a.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	a.metrics.ObserveSubprocess(string(branch.OperationAnalyze), time.Since(start))
	if err != nil {
		return nil, branch.NewSubprocessError(branch.OperationAnalyze, repository, tail(stderr.String()), err)
	}

	a.logger.Debug("analysis finished",
		slog.String("repository", repository),
		slog.String("report", humanize.Bytes(uint64(stdout.Len()))),
		slog.Duration("elapsed", time.Since(start)),
	)
	return stdout.Bytes(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > diagnosticLimit {
		return s[len(s)-diagnosticLimit:]
	}
	return s
}

// String describes the configured command.
func (a *Analyzer) String() string {
	return fmt.Sprintf("%s %s", a.binary, strings.Join(a.args, " "))
}
