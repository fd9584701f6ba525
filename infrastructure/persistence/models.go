package persistence

import "time"

// RepositoryModel is a remote repository row.
type RepositoryModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Hostname       string    `gorm:"column:hostname;uniqueIndex:idx_repositories_identity;size:255;not null"`
	Owner          string    `gorm:"column:owner;uniqueIndex:idx_repositories_identity;size:255;not null"`
	RepositoryName string    `gorm:"column:repository_name;uniqueIndex:idx_repositories_identity;size:255;not null"`
	DefaultBranch  string    `gorm:"column:default_branch;size:255"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (RepositoryModel) TableName() string {
	return "repositories"
}

// BranchModel is one analysed branch of a repository.
type BranchModel struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	RepositoryID  int64           `gorm:"column:repository_id;uniqueIndex:idx_branches_identity;not null"`
	Repository    RepositoryModel `gorm:"foreignKey:RepositoryID;constraint:OnDelete:CASCADE"`
	Name          string          `gorm:"column:name;uniqueIndex:idx_branches_identity;size:255;not null"`
	LastCommitSHA string          `gorm:"column:last_commit_sha;size:64"`
	Report        []byte          `gorm:"column:report"`
	SizeBytes     int64           `gorm:"column:size_bytes;index;default:0"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

// TableName returns the table name.
func (BranchModel) TableName() string {
	return "branches"
}

// StatisticModel records one request for a branch. Rows are append-only.
type StatisticModel struct {
	ID           int64       `gorm:"primaryKey;autoIncrement"`
	RequesterTag string      `gorm:"column:requester_tag;size:255"`
	BranchID     int64       `gorm:"column:branch_id;index;not null"`
	Branch       BranchModel `gorm:"foreignKey:BranchID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time   `gorm:"column:created_at;index"`
}

// TableName returns the table name.
func (StatisticModel) TableName() string {
	return "statistics"
}
