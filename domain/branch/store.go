package branch

import "context"

// Store persists branch analyses.
type Store interface {
	// Find returns the record for a reference, or ErrNotFound.
	Find(ctx context.Context, ref Reference) (Record, error)
	// SaveAnalysis upserts the repository and branch rows in one transaction.
	SaveAnalysis(ctx context.Context, analysis Analysis) (Record, error)
	// RecordVisit appends a usage statistic for a branch.
	RecordVisit(ctx context.Context, branchID int64, requester string) error
}

// StatisticsStore answers read-only ranking queries over persisted history.
type StatisticsStore interface {
	Largest(ctx context.Context, limit int) ([]SizeRank, error)
	Recent(ctx context.Context, limit int) ([]RecentVisit, error)
	Popular(ctx context.Context, limit int) ([]Popularity, error)
}
