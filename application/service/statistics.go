package service

import (
	"context"

	"github.com/helixml/branchscope/domain/branch"
)

// MaxStatisticsLimit caps every ranking query.
const MaxStatisticsLimit = 100

// Statistics answers ranking queries over analysis history.
type Statistics struct {
	store branch.StatisticsStore
}

// NewStatistics creates a Statistics service.
func NewStatistics(store branch.StatisticsStore) *Statistics {
	return &Statistics{store: store}
}

// Largest returns the branches with the largest working trees.
func (s *Statistics) Largest(ctx context.Context, limit int) ([]branch.SizeRank, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.store.Largest(ctx, limit)
}

// Recent returns the most recently analysed branches.
func (s *Statistics) Recent(ctx context.Context, limit int) ([]branch.RecentVisit, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.store.Recent(ctx, limit)
}

// Popular returns the most frequently analysed branches.
func (s *Statistics) Popular(ctx context.Context, limit int) ([]branch.Popularity, error) {
	limit, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}
	return s.store.Popular(ctx, limit)
}

func clampLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrInvalidLimit
	}
	return min(limit, MaxStatisticsLimit), nil
}
