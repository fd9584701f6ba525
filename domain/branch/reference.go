// Package branch provides the domain types for analysed git branches.
package branch

import (
	"fmt"
	"strings"
)

// Reference identifies one branch of one remote repository.
type Reference struct {
	host       string
	owner      string
	repository string
	branch     string
}

// NewReference creates a Reference. Leading slashes on the branch are trimmed
// so that wildcard route captures can be passed through unchanged.
func NewReference(host, owner, repository, branch string) Reference {
	return Reference{
		host:       strings.TrimSpace(host),
		owner:      strings.TrimSpace(owner),
		repository: strings.TrimSpace(repository),
		branch:     strings.TrimLeft(strings.TrimSpace(branch), "/"),
	}
}

// Host returns the remote host name, e.g. github.com.
func (r Reference) Host() string { return r.host }

// Owner returns the repository owner.
func (r Reference) Owner() string { return r.owner }

// Repository returns the repository name.
func (r Reference) Repository() string { return r.repository }

// Branch returns the branch name. Empty means "default branch, not yet resolved".
func (r Reference) Branch() string { return r.branch }

// HasBranch reports whether a branch name is set.
func (r Reference) HasBranch() bool { return r.branch != "" }

// WithBranch returns a copy of the reference pointing at another branch.
func (r Reference) WithBranch(branch string) Reference {
	return NewReference(r.host, r.owner, r.repository, branch)
}

// Validate checks that host, owner and repository are present.
func (r Reference) Validate() error {
	switch {
	case r.host == "":
		return fmt.Errorf("%w: host is required", ErrInvalidReference)
	case r.owner == "":
		return fmt.Errorf("%w: owner is required", ErrInvalidReference)
	case r.repository == "":
		return fmt.Errorf("%w: repository is required", ErrInvalidReference)
	}
	return nil
}

// UniqueName renders the canonical key host/owner/repository/branch.
func (r Reference) UniqueName() string {
	return r.host + "/" + r.owner + "/" + r.repository + "/" + r.branch
}

// Path renders host/owner/repository.
func (r Reference) Path() string {
	return r.host + "/" + r.owner + "/" + r.repository
}

// URL renders the remote https URL of the repository.
func (r Reference) URL() string {
	return "https://" + r.Path()
}

// String implements fmt.Stringer.
func (r Reference) String() string {
	return r.UniqueName()
}

// RemoteURL builds the https URL for host/owner/repository.
func RemoteURL(host, owner, repository string) string {
	return NewReference(host, owner, repository, "").URL()
}
