package branch

import "time"

// Task is one accepted request for analysing a branch.
// It is owned by the queue until dispatched to the pipeline.
type Task struct {
	reference     Reference
	defaultBranch string
	requester     string
	createdAt     time.Time
}

// NewTask creates a Task. The reference must already carry a branch name.
func NewTask(reference Reference, defaultBranch, requester string) Task {
	return Task{
		reference:     reference,
		defaultBranch: defaultBranch,
		requester:     requester,
		createdAt:     time.Now().UTC(),
	}
}

// Reference returns the analysed reference.
func (t Task) Reference() Reference { return t.reference }

// DefaultBranch returns the remote's default branch at acceptance time.
func (t Task) DefaultBranch() string { return t.defaultBranch }

// Requester returns the tag of whoever asked for the analysis.
func (t Task) Requester() string { return t.requester }

// CreatedAt returns when the task was accepted.
func (t Task) CreatedAt() time.Time { return t.createdAt }

// UniqueName returns the reference key.
func (t Task) UniqueName() string { return t.reference.UniqueName() }

// IsDefaultBranch reports whether the task targets the default branch.
func (t Task) IsDefaultBranch() bool {
	return t.defaultBranch != "" && t.reference.Branch() == t.defaultBranch
}
