package tracking

import (
	"context"
	"log/slog"

	"github.com/helixml/branchscope/domain/status"
)

// LoggingReporter implements status.Reporter by logging status changes.
type LoggingReporter struct {
	logger *slog.Logger
}

// NewLoggingReporter creates a new LoggingReporter.
func NewLoggingReporter(logger *slog.Logger) *LoggingReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingReporter{
		logger: logger,
	}
}

// OnChange logs the status change.
func (r *LoggingReporter) OnChange(ctx context.Context, key string, s status.Status) error {
	switch s.Kind() {
	case status.KindError:
		r.logger.ErrorContext(ctx, "analysis status",
			slog.String("key", key),
			slog.String("state", s.Kind().String()),
			slog.String("error", s.Message()),
		)
	case status.KindInProgress:
		r.logger.DebugContext(ctx, "analysis status",
			slog.String("key", key),
			slog.String("state", s.Kind().String()),
			slog.String("progress", lastLine(s.Progress())),
		)
	case status.KindReady, status.KindCloned, status.KindDone, status.KindPrevious:
		r.logger.InfoContext(ctx, "analysis status",
			slog.String("key", key),
			slog.String("state", s.Kind().String()),
		)
	}
	return nil
}

// lastLine returns the final non-empty line of rendered progress.
func lastLine(progress string) string {
	end := len(progress)
	for end > 0 && progress[end-1] == '\n' {
		end--
	}
	start := end
	for start > 0 && progress[start-1] != '\n' {
		start--
	}
	return progress[start:end]
}
