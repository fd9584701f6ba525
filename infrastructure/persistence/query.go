package persistence

import (
	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/internal/database"
)

// Columns used in branch queries. Repository columns are qualified with
// the alias GORM gives the joined association.
const (
	columnHostname       = `"Repository"."hostname"`
	columnOwner          = `"Repository"."owner"`
	columnRepositoryName = `"Repository"."repository_name"`
	columnBranchID       = "branches.id"
	columnBranchName     = "branches.name"
	columnSizeBytes      = "branches.size_bytes"
)

// referenceQuery matches the branch named by every component of ref.
func referenceQuery(ref branch.Reference) database.Query {
	return database.NewQuery().
		Equal(columnHostname, ref.Host()).
		Equal(columnOwner, ref.Owner()).
		Equal(columnRepositoryName, ref.Repository()).
		Equal(columnBranchName, ref.Branch())
}

// largestQuery orders branches by working tree size, largest first.
func largestQuery(limit int) database.Query {
	return database.NewQuery().OrderDesc(columnSizeBytes).Limit(limit)
}

// idQuery matches the branches with the given ids.
func idQuery(ids []int64) database.Query {
	return database.NewQuery().In(columnBranchID, ids)
}
