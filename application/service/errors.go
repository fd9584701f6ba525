package service

import "errors"

var (
	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("branchscope: client is closed")
	// ErrStillProcessing indicates a bounded wait ended before the analysis
	// finished. The request stays accepted; callers retry later.
	ErrStillProcessing = errors.New("analysis still in progress")
	// ErrInvalidLimit indicates a non-positive ranking limit.
	ErrInvalidLimit = errors.New("limit must be positive")
	// ErrPanicked wraps a panic recovered from a pipeline run.
	ErrPanicked = errors.New("pipeline panicked")
)
