package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/branchscope/infrastructure/api/middleware"
)

// RemoteRouter answers lookups against the remote without analysing it.
type RemoteRouter struct {
	backend Backend
	logger  *slog.Logger
}

// NewRemoteRouter creates a RemoteRouter.
func NewRemoteRouter(backend Backend, logger *slog.Logger) *RemoteRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteRouter{backend: backend, logger: logger}
}

// Routes returns the lookup routes, to be mounted at /api/{host}/{owner}/{repo}.
func (h *RemoteRouter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.defaultBranch)
	r.Get("/branches", h.branches)
	r.Get("/tree/*", h.lastCommit)
	r.Get("/-/tree/*", h.lastCommit)
	r.Get("/src/*", h.lastCommit)
	return r
}

func (h *RemoteRouter) defaultBranch(w http.ResponseWriter, r *http.Request) {
	t := targetFrom(r)
	name, err := h.backend.DefaultBranchRemote(r.Context(), t.host, t.owner, t.repository)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"default_branch": name})
}

func (h *RemoteRouter) branches(w http.ResponseWriter, r *http.Request) {
	t := targetFrom(r)
	branches, err := h.backend.RemoteBranches(r.Context(), t.host, t.owner, t.repository)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, branches)
}

func (h *RemoteRouter) lastCommit(w http.ResponseWriter, r *http.Request) {
	t := targetFrom(r)
	commit, err := h.backend.LastCommitRemote(r.Context(), t.host, t.owner, t.repository, t.branch)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"commit": commit})
}
