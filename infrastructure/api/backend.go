package api

import (
	"context"

	"github.com/helixml/branchscope/application/service"
	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/domain/status"
	"github.com/helixml/branchscope/infrastructure/git"
)

// Backend is the part of the client the HTTP handlers use.
type Backend interface {
	RequestInfo(ctx context.Context, host, owner, repository, branchName, requester string) (string, status.Status, error)
	Await(ctx context.Context, key string) (status.Status, error)
	Subscribe(ctx context.Context, key string) <-chan status.Status
	RemoteBranches(ctx context.Context, host, owner, repository string) (git.Branches, error)
	DefaultBranchRemote(ctx context.Context, host, owner, repository string) (string, error)
	LastCommitRemote(ctx context.Context, host, owner, repository, branchName string) (string, error)
}

// StatisticsSource answers the ranking queries.
type StatisticsSource interface {
	Largest(ctx context.Context, limit int) ([]branch.SizeRank, error)
	Recent(ctx context.Context, limit int) ([]branch.RecentVisit, error)
	Popular(ctx context.Context, limit int) ([]branch.Popularity, error)
}

var _ StatisticsSource = (*service.Statistics)(nil)
