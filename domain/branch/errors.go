package branch

import (
	"errors"
	"fmt"
)

// Sentinel errors for branch analysis.
var (
	ErrInvalidReference       = errors.New("invalid reference")
	ErrNotFound               = errors.New("branch record not found")
	ErrRemoteUnavailable      = errors.New("remote unavailable")
	ErrBranchNotFound         = errors.New("branch not found on remote")
	ErrSubprocess             = errors.New("subprocess failed")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrResourceExhausted      = errors.New("resource exhausted")
	ErrConflict               = errors.New("analysis already in progress")
)

// Operation names the external command that failed.
type Operation string

// Operation values.
const (
	OperationClone   Operation = "clone"
	OperationPull    Operation = "pull"
	OperationAnalyze Operation = "analyze"
)

// SubprocessError describes a failed external command.
type SubprocessError struct {
	Operation  Operation
	Repository string
	Diagnostic string
	Err        error
}

// NewSubprocessError creates a SubprocessError.
func NewSubprocessError(op Operation, repository, diagnostic string, err error) *SubprocessError {
	return &SubprocessError{
		Operation:  op,
		Repository: repository,
		Diagnostic: diagnostic,
		Err:        err,
	}
}

// Error implements error.
func (e *SubprocessError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Operation, e.Repository)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *SubprocessError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSubprocess}
	}
	return []error{ErrSubprocess, e.Err}
}
