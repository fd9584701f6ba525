package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/infrastructure/persistence"
	"github.com/helixml/branchscope/internal/database"
	"github.com/helixml/branchscope/internal/testdb"
)

type seeded struct {
	db    database.Database
	ids   map[string]int64
	store persistence.StatisticsStore
}

func seedStatistics(t *testing.T) seeded {
	t.Helper()
	db := testdb.New(t)
	branches := persistence.NewBranchStore(db)
	ctx := context.Background()

	sizes := map[string]int64{"small": 10, "large": 3000, "medium": 500}
	ids := make(map[string]int64, len(sizes))
	for name, size := range sizes {
		ref := branch.NewReference("github.com", "acme", name, "main")
		rec, err := branches.SaveAnalysis(ctx, analysisFor(ref, "main", "abc", name, size))
		require.NoError(t, err)
		ids[name] = rec.ID()
	}
	return seeded{db: db, ids: ids, store: persistence.NewStatisticsStore(db)}
}

// visit inserts a statistic with an explicit timestamp so ordering is
// deterministic.
func (s seeded) visit(t *testing.T, name string, at time.Time) {
	t.Helper()
	row := persistence.StatisticModel{RequesterTag: "test", BranchID: s.ids[name], CreatedAt: at}
	require.NoError(t, s.db.Session(context.Background()).Omit("Branch").Create(&row).Error)
}

func repositories[T any](items []T, ref func(T) branch.Reference) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = ref(it).Repository()
	}
	return out
}

func TestStatisticsStore_Largest(t *testing.T) {
	s := seedStatistics(t)

	ranks, err := s.store.Largest(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"large", "medium"},
		repositories(ranks, func(r branch.SizeRank) branch.Reference { return r.Reference }))
	assert.Equal(t, int64(3000), ranks[0].SizeBytes)
}

func TestStatisticsStore_Recent(t *testing.T) {
	s := seedStatistics(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.visit(t, "small", base)
	s.visit(t, "large", base.Add(time.Minute))
	s.visit(t, "small", base.Add(2*time.Minute))
	s.visit(t, "small", base.Add(3*time.Minute))
	s.visit(t, "medium", base.Add(-time.Hour))

	visits, err := s.store.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"small", "large"},
		repositories(visits, func(v branch.RecentVisit) branch.Reference { return v.Reference }))
	assert.True(t, visits[0].VisitedAt.Equal(base.Add(3*time.Minute)), "got %v", visits[0].VisitedAt)

	all, err := s.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, all, 3, "each branch appears once")

	none, err := s.store.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStatisticsStore_Popular(t *testing.T) {
	s := seedStatistics(t)
	now := time.Now().UTC()
	for i := range 3 {
		s.visit(t, "medium", now.Add(time.Duration(i)*time.Second))
	}
	s.visit(t, "small", now)
	s.visit(t, "large", now)
	s.visit(t, "large", now)

	popular, err := s.store.Popular(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, "medium", popular[0].Reference.Repository())
	assert.Equal(t, int64(3), popular[0].Count)
	assert.Equal(t, "large", popular[1].Reference.Repository())
	assert.Equal(t, int64(2), popular[1].Count)
}
