package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	sourcehutHost = "git.sr.ht"
	codebergHost  = "codeberg.org"
)

// target is the repository and branch named by a request path.
type target struct {
	host       string
	owner      string
	repository string
	branch     string
}

// targetFrom reads the host, owner and repo URL params and the wildcard
// branch capture. Repository names get a .git suffix except on sourcehut,
// which serves repositories without one.
func targetFrom(r *http.Request) target {
	host := chi.URLParam(r, "host")
	return target{
		host:       host,
		owner:      chi.URLParam(r, "owner"),
		repository: withGitSuffix(host, chi.URLParam(r, "repo")),
		branch:     normalizeBranch(host, chi.URLParam(r, "*")),
	}
}

func withGitSuffix(host, repository string) string {
	if repository == "" || host == sourcehutHost || strings.HasSuffix(repository, ".git") {
		return repository
	}
	return repository + ".git"
}

// normalizeBranch trims slashes from a wildcard capture. Codeberg branch
// URLs look like /src/branch/<name>, so the leading "branch/" is dropped
// there.
func normalizeBranch(host, raw string) string {
	b := strings.Trim(raw, "/")
	if host == codebergHost {
		b = strings.TrimPrefix(b, "branch/")
	}
	return b
}

// branchRoutes registers h for the repository root and every branch URL
// form used by the supported forges.
func branchRoutes(r chi.Router, h http.HandlerFunc) {
	r.Get("/", h)
	r.Get("/tree/*", h)
	r.Get("/-/tree/*", h)
	r.Get("/src/*", h)
}
