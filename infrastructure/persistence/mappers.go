package persistence

import "github.com/helixml/branchscope/domain/branch"

// RepositoryMapper maps between branch.Repository and RepositoryModel.
type RepositoryMapper struct{}

// ToDomain converts a RepositoryModel to a branch.Repository.
func (RepositoryMapper) ToDomain(e RepositoryModel) branch.Repository {
	return branch.ReconstructRepository(
		e.ID,
		e.Hostname,
		e.Owner,
		e.RepositoryName,
		e.DefaultBranch,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// ToModel converts a branch.Repository to a RepositoryModel.
func (RepositoryMapper) ToModel(r branch.Repository) RepositoryModel {
	return RepositoryModel{
		ID:             r.ID(),
		Hostname:       r.Hostname(),
		Owner:          r.Owner(),
		RepositoryName: r.Name(),
		DefaultBranch:  r.DefaultBranch(),
		CreatedAt:      r.CreatedAt(),
		UpdatedAt:      r.UpdatedAt(),
	}
}

// BranchMapper maps between branch.Record and BranchModel. The model's
// Repository association must be loaded.
type BranchMapper struct{}

// ToDomain converts a BranchModel to a branch.Record.
func (BranchMapper) ToDomain(e BranchModel) branch.Record {
	return branch.ReconstructRecord(
		e.ID,
		RepositoryMapper{}.ToDomain(e.Repository),
		e.Name,
		e.LastCommitSHA,
		e.Report,
		e.SizeBytes,
		e.CreatedAt,
		e.UpdatedAt,
	)
}

// ToModel converts a branch.Record to a BranchModel.
func (BranchMapper) ToModel(r branch.Record) BranchModel {
	repo := RepositoryMapper{}.ToModel(r.Repository())
	return BranchModel{
		ID:            r.ID(),
		RepositoryID:  repo.ID,
		Repository:    repo,
		Name:          r.Name(),
		LastCommitSHA: r.LastCommit(),
		Report:        r.Report(),
		SizeBytes:     r.SizeBytes(),
		CreatedAt:     r.CreatedAt(),
		UpdatedAt:     r.UpdatedAt(),
	}
}
