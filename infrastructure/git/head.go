package git

import (
	"context"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
)

// HeadReader reads the checked-out commit of a local clone.
type HeadReader struct{}

// NewHeadReader creates a HeadReader.
func NewHeadReader() HeadReader { return HeadReader{} }

// HeadCommit returns the SHA that HEAD resolves to in dir.
func (HeadReader) HeadCommit(_ context.Context, dir string) (string, error) {
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open repository %s: %w", dir, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD in %s: %w", dir, err)
	}
	return head.Hash().String(), nil
}
