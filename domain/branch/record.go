package branch

import "time"

// Repository is the persisted identity of a remote repository.
type Repository struct {
	id            int64
	hostname      string
	owner         string
	name          string
	defaultBranch string
	createdAt     time.Time
	updatedAt     time.Time
}

// ReconstructRepository rebuilds a Repository from storage.
func ReconstructRepository(id int64, hostname, owner, name, defaultBranch string, createdAt, updatedAt time.Time) Repository {
	return Repository{
		id:            id,
		hostname:      hostname,
		owner:         owner,
		name:          name,
		defaultBranch: defaultBranch,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// ID returns the storage identifier.
func (r Repository) ID() int64 { return r.id }

// Hostname returns the remote host.
func (r Repository) Hostname() string { return r.hostname }

// Owner returns the repository owner.
func (r Repository) Owner() string { return r.owner }

// Name returns the repository name.
func (r Repository) Name() string { return r.name }

// DefaultBranch returns the last known default branch.
func (r Repository) DefaultBranch() string { return r.defaultBranch }

// CreatedAt returns the creation time.
func (r Repository) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last update time.
func (r Repository) UpdatedAt() time.Time { return r.updatedAt }

// Record is a persisted branch analysis together with its repository.
type Record struct {
	id         int64
	repository Repository
	name       string
	lastCommit string
	report     []byte
	sizeBytes  int64
	createdAt  time.Time
	updatedAt  time.Time
}

// ReconstructRecord rebuilds a Record from storage.
func ReconstructRecord(
	id int64,
	repository Repository,
	name, lastCommit string,
	report []byte,
	sizeBytes int64,
	createdAt, updatedAt time.Time,
) Record {
	return Record{
		id:         id,
		repository: repository,
		name:       name,
		lastCommit: lastCommit,
		report:     cloneBytes(report),
		sizeBytes:  sizeBytes,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
	}
}

// ID returns the branch storage identifier.
func (r Record) ID() int64 { return r.id }

// Repository returns the owning repository.
func (r Record) Repository() Repository { return r.repository }

// Name returns the branch name.
func (r Record) Name() string { return r.name }

// LastCommit returns the commit the report was computed for.
func (r Record) LastCommit() string { return r.lastCommit }

// Report returns a copy of the stored report bytes.
func (r Record) Report() []byte { return cloneBytes(r.report) }

// SizeBytes returns the on-disk size of the materialized branch.
func (r Record) SizeBytes() int64 { return r.sizeBytes }

// CreatedAt returns when the branch was first analysed.
func (r Record) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns when the report was last written.
func (r Record) UpdatedAt() time.Time { return r.updatedAt }

// Reference returns the reference this record describes.
func (r Record) Reference() Reference {
	return NewReference(r.repository.hostname, r.repository.owner, r.repository.name, r.name)
}

// IsFresh reports whether the record matches the remote head of the branch.
func (r Record) IsFresh(branch, remoteCommit string) bool {
	return r.name == branch && r.lastCommit != "" && r.lastCommit == remoteCommit
}

// Analysis is the outcome of analysing a materialized branch, ready to persist.
type Analysis struct {
	task      Task
	commit    string
	report    []byte
	sizeBytes int64
}

// NewAnalysis creates an Analysis.
func NewAnalysis(task Task, commit string, report []byte, sizeBytes int64) Analysis {
	return Analysis{
		task:      task,
		commit:    commit,
		report:    cloneBytes(report),
		sizeBytes: sizeBytes,
	}
}

// Task returns the task that produced the analysis.
func (a Analysis) Task() Task { return a.task }

// Commit returns the locally materialized commit.
func (a Analysis) Commit() string { return a.commit }

// Report returns a copy of the report bytes.
func (a Analysis) Report() []byte { return cloneBytes(a.report) }

// SizeBytes returns the directory size.
func (a Analysis) SizeBytes() int64 { return a.sizeBytes }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
