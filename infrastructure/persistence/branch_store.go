package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/internal/database"
)

// joinRepository loads the owning repository so conditions can refer to
// "Repository" columns.
func joinRepository(db *gorm.DB) *gorm.DB {
	return db.Joins("Repository")
}

// BranchStore implements branch.Store using GORM.
type BranchStore struct {
	database.Repository[branch.Record, BranchModel]
}

// NewBranchStore creates a new BranchStore.
func NewBranchStore(db database.Database) BranchStore {
	return BranchStore{
		Repository: database.NewRepositoryWithScope[branch.Record, BranchModel](db, BranchMapper{}, "branch", joinRepository),
	}
}

// Find returns the stored analysis for ref.
func (s BranchStore) Find(ctx context.Context, ref branch.Reference) (branch.Record, error) {
	record, err := s.FindOne(ctx, referenceQuery(ref))
	if errors.Is(err, database.ErrNotFound) {
		return branch.Record{}, fmt.Errorf("%w: %s", branch.ErrNotFound, ref.UniqueName())
	}
	if err != nil {
		return branch.Record{}, err
	}
	return record, nil
}

// SaveAnalysis upserts the repository row and then the branch row in one
// serializable transaction. Either both rows change or neither does.
func (s BranchStore) SaveAnalysis(ctx context.Context, analysis branch.Analysis) (branch.Record, error) {
	var record branch.Record
	err := database.WithTransaction(ctx, s.DB(), func(tx *gorm.DB) error {
		task := analysis.Task()
		ref := task.Reference()
		now := time.Now().UTC()

		repo, err := upsertRepository(tx, ref, task.DefaultBranch(), now)
		if err != nil {
			return err
		}

		model, err := upsertBranch(tx, repo.ID, ref.Branch(), analysis, now)
		if err != nil {
			return err
		}

		model.Repository = repo
		record = s.Mapper().ToDomain(model)
		return nil
	}, database.Serializable())
	if err != nil {
		return branch.Record{}, err
	}
	return record, nil
}

func upsertBranch(tx *gorm.DB, repositoryID int64, name string, analysis branch.Analysis, now time.Time) (BranchModel, error) {
	var model BranchModel
	err := tx.Where("repository_id = ? AND name = ?", repositoryID, name).Take(&model).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		model = BranchModel{
			RepositoryID:  repositoryID,
			Name:          name,
			LastCommitSHA: analysis.Commit(),
			Report:        analysis.Report(),
			SizeBytes:     analysis.SizeBytes(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Omit("Repository").Create(&model).Error; err != nil {
			return BranchModel{}, fmt.Errorf("create branch: %w", err)
		}
		return model, nil
	case err != nil:
		return BranchModel{}, fmt.Errorf("find branch: %w", err)
	}

	model.LastCommitSHA = analysis.Commit()
	model.Report = analysis.Report()
	model.SizeBytes = analysis.SizeBytes()
	model.UpdatedAt = now
	err = tx.Model(&BranchModel{}).Where("id = ?", model.ID).Updates(map[string]any{
		"last_commit_sha": model.LastCommitSHA,
		"report":          model.Report,
		"size_bytes":      model.SizeBytes,
		"updated_at":      model.UpdatedAt,
	}).Error
	if err != nil {
		return BranchModel{}, fmt.Errorf("update branch: %w", err)
	}
	return model, nil
}

func upsertRepository(tx *gorm.DB, ref branch.Reference, defaultBranch string, now time.Time) (RepositoryModel, error) {
	var repo RepositoryModel
	err := tx.Where("hostname = ? AND owner = ? AND repository_name = ?",
		ref.Host(), ref.Owner(), ref.Repository()).Take(&repo).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		repo = RepositoryModel{
			Hostname:       ref.Host(),
			Owner:          ref.Owner(),
			RepositoryName: ref.Repository(),
			DefaultBranch:  defaultBranch,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Create(&repo).Error; err != nil {
			return RepositoryModel{}, fmt.Errorf("create repository: %w", err)
		}
		return repo, nil
	case err != nil:
		return RepositoryModel{}, fmt.Errorf("find repository: %w", err)
	}

	if defaultBranch == "" {
		defaultBranch = repo.DefaultBranch
	}
	repo.DefaultBranch = defaultBranch
	repo.UpdatedAt = now
	err = tx.Model(&RepositoryModel{}).Where("id = ?", repo.ID).Updates(map[string]any{
		"default_branch": repo.DefaultBranch,
		"updated_at":     repo.UpdatedAt,
	}).Error
	if err != nil {
		return RepositoryModel{}, fmt.Errorf("update repository: %w", err)
	}
	return repo, nil
}

// RecordVisit appends a statistic row for branchID.
func (s BranchStore) RecordVisit(ctx context.Context, branchID int64, requester string) error {
	row := StatisticModel{
		RequesterTag: requester,
		BranchID:     branchID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.DB().Session(ctx).Omit("Branch").Create(&row).Error; err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}
