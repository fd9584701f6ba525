package persistence

import (
	"context"
	"fmt"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/internal/database"
)

// recentPageFactor sizes the statistic pages read while collecting distinct
// branches for Recent.
const recentPageFactor = 4

// StatisticsStore implements branch.StatisticsStore using GORM.
type StatisticsStore struct {
	branches database.Repository[branch.Record, BranchModel]
}

// NewStatisticsStore creates a new StatisticsStore.
func NewStatisticsStore(db database.Database) StatisticsStore {
	return StatisticsStore{
		branches: database.NewRepositoryWithScope[branch.Record, BranchModel](db, BranchMapper{}, "branch", joinRepository),
	}
}

// Largest returns the branches with the largest working trees.
func (s StatisticsStore) Largest(ctx context.Context, limit int) ([]branch.SizeRank, error) {
	records, err := s.branches.Find(ctx, largestQuery(limit))
	if err != nil {
		return nil, fmt.Errorf("largest branches: %w", err)
	}
	ranks := make([]branch.SizeRank, len(records))
	for i, r := range records {
		ranks[i] = branch.SizeRank{Reference: r.Reference(), SizeBytes: r.SizeBytes()}
	}
	return ranks, nil
}

// Recent returns the most recently requested distinct branches.
func (s StatisticsStore) Recent(ctx context.Context, limit int) ([]branch.RecentVisit, error) {
	if limit <= 0 {
		return nil, nil
	}
	db := s.branches.DB().Session(ctx)
	page := limit * recentPageFactor

	var (
		order = make([]int64, 0, limit)
		seen  = make(map[int64]StatisticModel, limit)
	)
	for offset := 0; len(order) < limit; offset += page {
		var rows []StatisticModel
		err := db.Model(&StatisticModel{}).
			Select("id", "branch_id", "created_at").
			Order("created_at DESC").Order("id DESC").
			Limit(page).Offset(offset).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("recent statistics: %w", err)
		}
		for _, row := range rows {
			if _, ok := seen[row.BranchID]; ok {
				continue
			}
			seen[row.BranchID] = row
			order = append(order, row.BranchID)
			if len(order) == limit {
				break
			}
		}
		if len(rows) < page {
			break
		}
	}

	records, err := s.byID(ctx, order)
	if err != nil {
		return nil, err
	}
	visits := make([]branch.RecentVisit, 0, len(order))
	for _, id := range order {
		if r, ok := records[id]; ok {
			visits = append(visits, branch.RecentVisit{Reference: r.Reference(), VisitedAt: seen[id].CreatedAt})
		}
	}
	return visits, nil
}

type visitCount struct {
	BranchID int64
	Visits   int64
}

// Popular returns the branches requested most often.
func (s StatisticsStore) Popular(ctx context.Context, limit int) ([]branch.Popularity, error) {
	if limit <= 0 {
		return nil, nil
	}
	var counts []visitCount
	err := s.branches.DB().Session(ctx).Model(&StatisticModel{}).
		Select("branch_id, COUNT(*) AS visits").
		Group("branch_id").
		Order("visits DESC").Order("branch_id ASC").
		Limit(limit).
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("popular statistics: %w", err)
	}

	ids := make([]int64, len(counts))
	for i, c := range counts {
		ids[i] = c.BranchID
	}
	records, err := s.byID(ctx, ids)
	if err != nil {
		return nil, err
	}
	result := make([]branch.Popularity, 0, len(counts))
	for _, c := range counts {
		if r, ok := records[c.BranchID]; ok {
			result = append(result, branch.Popularity{Reference: r.Reference(), Count: c.Visits})
		}
	}
	return result, nil
}

func (s StatisticsStore) byID(ctx context.Context, ids []int64) (map[int64]branch.Record, error) {
	out := make(map[int64]branch.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	records, err := s.branches.Find(ctx, idQuery(ids))
	if err != nil {
		return nil, fmt.Errorf("load branches: %w", err)
	}
	for _, r := range records {
		out[r.ID()] = r
	}
	return out, nil
}
