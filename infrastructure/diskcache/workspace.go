package diskcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/helixml/branchscope/domain/branch"
)

// Workspace is a directory owned by one pipeline run. Release removes it
// unless Promote handed it to the cache first. Callers defer Release.
type Workspace struct {
	mu       sync.Mutex
	dir      string
	promoted bool
	released bool
}

// NewWorkspace creates a uniquely named directory under root.
func NewWorkspace(root string) (*Workspace, error) {
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create workspace in %s: %w", branch.ErrResourceExhausted, root, err)
	}
	return &Workspace{dir: dir}, nil
}

// AdoptWorkspace takes ownership of an existing directory, such as one
// taken out of the cache.
func AdoptWorkspace(dir string) *Workspace {
	return &Workspace{dir: dir}
}

// Dir returns the directory path.
func (w *Workspace) Dir() string { return w.dir }

// Promote marks the directory as owned elsewhere and returns it.
func (w *Workspace) Promote() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.promoted = true
	return w.dir
}

// Release removes the directory unless it was promoted. It is safe to call
// more than once.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.promoted || w.released {
		return nil
	}
	w.released = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.dir, err)
	}
	return nil
}

// ResetRoot empties root, removing directories left by a previous process.
// The cache is in-memory, so nothing under root survives a restart.
func ResetRoot(root string) error {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return os.MkdirAll(root, 0o755)
	}
	if err != nil {
		return fmt.Errorf("read workspace root: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return fmt.Errorf("clean workspace root: %w", err)
		}
	}
	return nil
}
