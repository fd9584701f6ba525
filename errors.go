package branchscope

import (
	"errors"

	"github.com/helixml/branchscope/application/service"
	"github.com/helixml/branchscope/domain/branch"
)

// Errors returned by the Client. The branch errors are re-exported so that
// callers need not import the domain package to match them.
var (
	ErrNoDatabase      = errors.New("branchscope: no database configured")
	ErrClientClosed    = service.ErrClientClosed
	ErrStillProcessing = service.ErrStillProcessing

	ErrInvalidReference       = branch.ErrInvalidReference
	ErrRemoteUnavailable      = branch.ErrRemoteUnavailable
	ErrBranchNotFound         = branch.ErrBranchNotFound
	ErrSubprocess             = branch.ErrSubprocess
	ErrPersistenceUnavailable = branch.ErrPersistenceUnavailable
	ErrResourceExhausted      = branch.ErrResourceExhausted
	ErrConflict               = branch.ErrConflict
)
