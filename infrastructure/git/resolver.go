package git

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"code.gitea.io/gitea/modules/git/gitcmd"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/helixml/branchscope/domain/branch"
)

// Resolver defaults.
const (
	DefaultRemoteTTL     = 60 * time.Second
	DefaultRemoteTimeout = 30 * time.Second
)

// Resolver answers questions about a remote's branches using ls-remote.
// Answers are cached per URL and concurrent lookups share one subprocess.
type Resolver struct {
	binary  string
	ttl     time.Duration
	timeout time.Duration
	cache   *gocache.Cache
	group   singleflight.Group
	logger  *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverBinary sets the git executable.
func WithResolverBinary(binary string) ResolverOption {
	return func(r *Resolver) {
		if binary != "" {
			r.binary = binary
		}
	}
}

// WithTTL sets how long a remote answer is reused.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithTimeout bounds a single ls-remote invocation.
func WithTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		binary:  DefaultBinary,
		ttl:     DefaultRemoteTTL,
		timeout: DefaultRemoteTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = gocache.New(r.ttl, 2*r.ttl)
	return r
}

// AllBranches lists every branch head of the remote at url.
func (r *Resolver) AllBranches(ctx context.Context, url string) (Branches, error) {
	if cached, ok := r.cache.Get(url); ok {
		return cached.(Branches), nil
	}

	ch := r.group.DoChan(url, func() (any, error) {
		// Shared by every waiter, so it must outlive any single caller.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		b, err := r.lsRemote(runCtx, url)
		if err != nil {
			return Branches{}, err
		}
		r.cache.Set(url, b, gocache.DefaultExpiration)
		return b, nil
	})

	select {
	case <-ctx.Done():
		return Branches{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Branches{}, res.Err
		}
		return res.Val.(Branches), nil
	}
}

// DefaultBranch returns the branch the remote HEAD points at.
func (r *Resolver) DefaultBranch(ctx context.Context, url string) (string, error) {
	b, err := r.AllBranches(ctx, url)
	if err != nil {
		return "", err
	}
	if b.Default == "" {
		return "", fmt.Errorf("%w: no head matches HEAD of %s", branch.ErrBranchNotFound, url)
	}
	return b.Default, nil
}

// LastCommit returns the head commit of name on the remote.
func (r *Resolver) LastCommit(ctx context.Context, url, name string) (string, error) {
	b, err := r.AllBranches(ctx, url)
	if err != nil {
		return "", err
	}
	commit, ok := b.Commit(name)
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", branch.ErrBranchNotFound, name, url)
	}
	return commit, nil
}

// Invalidate drops the cached answer for url.
func (r *Resolver) Invalidate(url string) {
	r.cache.Delete(url)
}

func (r *Resolver) lsRemote(ctx context.Context, url string) (Branches, error) {
	if err := useBinary(r.binary); err != nil {
		return Branches{}, fmt.Errorf("%w: %w", branch.ErrRemoteUnavailable, err)
	}

	start := time.Now()
	stdout, stderr, runErr := gitcmd.NewCommand("ls-remote").
		AddDynamicArguments(url).
		RunStdString(ctx, &gitcmd.RunOpts{Env: commandEnv()})
	if runErr != nil {
		r.logger.Warn("ls-remote failed",
			slog.String("url", url),
			slog.String("error", runErr.Error()),
		)
		return Branches{}, fmt.Errorf("%w: ls-remote %s: %w: %s",
			branch.ErrRemoteUnavailable, url, runErr, strings.TrimSpace(stderr))
	}

	b, err := parseLsRemote(stdout)
	if err != nil {
		return Branches{}, fmt.Errorf("ls-remote %s: %w", url, err)
	}
	r.logger.Debug("resolved remote",
		slog.String("url", url),
		slog.Int("branches", len(b.Heads)),
		slog.String("default", b.Default),
		slog.Duration("elapsed", time.Since(start)),
	)
	return b, nil
}
