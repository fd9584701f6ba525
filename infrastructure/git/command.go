package git

import (
	"fmt"
	"os"
	"sync"

	giteagit "code.gitea.io/gitea/modules/git"
	"code.gitea.io/gitea/modules/setting"
)

// DefaultBinary is the git executable looked up on PATH.
const DefaultBinary = "git"

const diagnosticLimit = 4096

var (
	gitMu     sync.Mutex
	gitBinary string
)

// useBinary points gitea's git module at binary. The module keeps its
// executable in process-wide state, so it is initialized on first use and
// again whenever a different binary is requested.
func useBinary(binary string) error {
	gitMu.Lock()
	defer gitMu.Unlock()

	if binary == gitBinary {
		return nil
	}
	if setting.Git.HomePath == "" {
		// An isolated home keeps the user's git config out of every command.
		home, err := os.MkdirTemp("", "branchscope-git-home-*")
		if err != nil {
			return fmt.Errorf("create git home directory: %w", err)
		}
		setting.Git.HomePath = home
	}

	setting.Git.Path = binary
	if err := giteagit.InitSimple(); err != nil {
		gitBinary = ""
		return fmt.Errorf("init git %s: %w", binary, err)
	}
	gitBinary = binary
	return nil
}

// commandEnv is the environment of every git command: no credential
// prompts and untranslated output for the progress parser.
func commandEnv() []string {
	return append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

// Write implements io.Writer.
func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = append(t.data, p...)
	if over := len(t.data) - t.limit; over > 0 {
		t.data = append(t.data[:0], t.data[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.data)
}
