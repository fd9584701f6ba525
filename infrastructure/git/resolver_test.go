package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/helixml/branchscope/domain/branch"
)

const lsRemoteOutput = `printf 'aaa\tHEAD\nbbb\trefs/heads/dev\naaa\trefs/heads/main\n'`

// countingLsRemote returns a fake git that appends a line to a counter file
// on every call.
func countingLsRemote(t *testing.T, extra string) (string, func() int) {
	t.Helper()
	counter := filepath.Join(t.TempDir(), "calls")
	bin := fakeBinary(t, extra+"\necho call >> "+counter+"\n"+lsRemoteOutput)
	return bin, func() int {
		data, err := os.ReadFile(counter)
		if err != nil {
			return 0
		}
		return strings.Count(string(data), "call")
	}
}

func TestResolver_AllBranches(t *testing.T) {
	bin, calls := countingLsRemote(t, "")
	r := NewResolver(WithResolverBinary(bin))
	ctx := context.Background()

	b, err := r.AllBranches(ctx, "https://example.com/a/b")
	if err != nil {
		t.Fatalf("AllBranches: %v", err)
	}
	if b.Default != "main" || len(b.Heads) != 2 {
		t.Errorf("AllBranches = %+v", b)
	}

	def, err := r.DefaultBranch(ctx, "https://example.com/a/b")
	if err != nil || def != "main" {
		t.Errorf("DefaultBranch = %q, %v", def, err)
	}
	commit, err := r.LastCommit(ctx, "https://example.com/a/b", "dev")
	if err != nil || commit != "bbb" {
		t.Errorf("LastCommit = %q, %v", commit, err)
	}
	if n := calls(); n != 1 {
		t.Errorf("ls-remote ran %d times, want 1 (cached)", n)
	}

	r.Invalidate("https://example.com/a/b")
	if _, err := r.AllBranches(ctx, "https://example.com/a/b"); err != nil {
		t.Fatalf("AllBranches after Invalidate: %v", err)
	}
	if n := calls(); n != 2 {
		t.Errorf("ls-remote ran %d times after Invalidate, want 2", n)
	}
}

func TestResolver_ExpiresAfterTTL(t *testing.T) {
	bin, calls := countingLsRemote(t, "")
	r := NewResolver(WithResolverBinary(bin), WithTTL(50*time.Millisecond))
	ctx := context.Background()

	if _, err := r.AllBranches(ctx, "u"); err != nil {
		t.Fatalf("AllBranches: %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	if _, err := r.AllBranches(ctx, "u"); err != nil {
		t.Fatalf("AllBranches: %v", err)
	}
	if n := calls(); n != 2 {
		t.Errorf("ls-remote ran %d times, want 2", n)
	}
}

func TestResolver_ConcurrentMissesShareOneCall(t *testing.T) {
	bin, calls := countingLsRemote(t, "sleep 0.3")
	r := NewResolver(WithResolverBinary(bin))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.AllBranches(ctx, "https://example.com/a/b"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("AllBranches: %v", err)
	}
	if n := calls(); n != 1 {
		t.Errorf("ls-remote ran %d times, want 1", n)
	}
}

func TestResolver_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("command failure", func(t *testing.T) {
		bin := fakeBinary(t, "echo 'fatal: repository not found' >&2\nexit 128")
		r := NewResolver(WithResolverBinary(bin))

		_, err := r.AllBranches(ctx, "https://example.com/missing")
		if !errors.Is(err, branch.ErrRemoteUnavailable) {
			t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
		}
		if !strings.Contains(err.Error(), "repository not found") {
			t.Errorf("error should carry stderr, got %v", err)
		}
	})

	t.Run("empty output", func(t *testing.T) {
		bin := fakeBinary(t, "exit 0")
		r := NewResolver(WithResolverBinary(bin))

		if _, err := r.AllBranches(ctx, "u"); !errors.Is(err, branch.ErrRemoteUnavailable) {
			t.Errorf("expected ErrRemoteUnavailable, got %v", err)
		}
	})

	t.Run("unknown branch", func(t *testing.T) {
		bin, _ := countingLsRemote(t, "")
		r := NewResolver(WithResolverBinary(bin))

		if _, err := r.LastCommit(ctx, "u", "nope"); !errors.Is(err, branch.ErrBranchNotFound) {
			t.Errorf("expected ErrBranchNotFound, got %v", err)
		}
	})

	t.Run("failures are not cached", func(t *testing.T) {
		bin := fakeBinary(t, "exit 2")
		r := NewResolver(WithResolverBinary(bin))
		_, _ = r.AllBranches(ctx, "u")
		if _, ok := r.cache.Get("u"); ok {
			t.Error("failed lookup must not be cached")
		}
	})
}

func TestResolver_CallerCancellation(t *testing.T) {
	bin := fakeBinary(t, "sleep 2\n"+lsRemoteOutput)
	r := NewResolver(WithResolverBinary(bin))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := r.AllBranches(ctx, "u"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}
