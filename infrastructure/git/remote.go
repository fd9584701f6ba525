package git

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/helixml/branchscope/domain/branch"
)

const headsPrefix = "refs/heads/"

// Head is one branch advertised by a remote.
type Head struct {
	Name   string `json:"name" yaml:"name"`
	Commit string `json:"commit" yaml:"commit"`
}

// Branches is the parsed output of ls-remote.
type Branches struct {
	Default string `json:"default" yaml:"default"`
	Heads   []Head `json:"branches" yaml:"branches"`
}

// Commit returns the head commit of the named branch.
func (b Branches) Commit(name string) (string, bool) {
	for _, h := range b.Heads {
		if h.Name == name {
			return h.Commit, true
		}
	}
	return "", false
}

// Names returns the branch names sorted alphabetically.
func (b Branches) Names() []string {
	names := make([]string, 0, len(b.Heads))
	for _, h := range b.Heads {
		names = append(names, h.Name)
	}
	sort.Strings(names)
	return names
}

// parseLsRemote reads "<sha>\t<ref>" lines. The first line is HEAD; the
// default branch is the first head pointing at the same commit.
func parseLsRemote(out string) (Branches, error) {
	var (
		result  Branches
		headSHA string
		first   = true
	)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		sha, ref := fields[0], fields[1]
		if first {
			headSHA = sha
			first = false
		}
		if !strings.HasPrefix(ref, headsPrefix) {
			continue
		}
		name := strings.TrimPrefix(ref, headsPrefix)
		result.Heads = append(result.Heads, Head{Name: name, Commit: sha})
		if result.Default == "" && sha == headSHA {
			result.Default = name
		}
	}
	if err := scanner.Err(); err != nil {
		return Branches{}, fmt.Errorf("read ls-remote output: %w", err)
	}
	if first {
		return Branches{}, fmt.Errorf("%w: empty ls-remote output", branch.ErrRemoteUnavailable)
	}
	return result, nil
}
