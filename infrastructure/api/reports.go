package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixml/branchscope/application/service"
	"github.com/helixml/branchscope/domain/status"
	"github.com/helixml/branchscope/infrastructure/api/middleware"
)

// terminalAgents are User-Agent fragments of text-mode clients. Netrik
// identifies itself as "Not mandatory".
var terminalAgents = []string{"Lynx", "w3m", "Links", "Not mandatory", "curl"}

const previousReminder = "Currently, the repository is being downloaded and updated. Please check back in 5 minutes.\n"

// statusResponse is the JSON body for status answers.
type statusResponse struct {
	Key    string        `json:"key"`
	Status status.Status `json:"status"`
}

// ReportsRouter serves analysis reports for repository URLs.
type ReportsRouter struct {
	backend Backend
	logger  *slog.Logger
}

// NewReportsRouter creates a ReportsRouter.
func NewReportsRouter(backend Backend, logger *slog.Logger) *ReportsRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportsRouter{backend: backend, logger: logger}
}

// Routes returns the report routes, to be mounted at /{host}/{owner}/{repo}.
func (h *ReportsRouter) Routes() chi.Router {
	r := chi.NewRouter()
	branchRoutes(r, h.report)
	return r
}

func (h *ReportsRouter) report(w http.ResponseWriter, r *http.Request) {
	t := targetFrom(r)
	agent := r.UserAgent()

	key, current, err := h.backend.RequestInfo(r.Context(), t.host, t.owner, t.repository, t.branch, agent)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}

	if isTerminalAgent(agent) {
		h.terminal(w, r, key, current)
		return
	}
	h.regular(w, r, key, current)
}

// terminal answers text-mode clients, which cannot follow a websocket, by
// waiting a bounded time for the analysis to finish.
func (h *ReportsRouter) terminal(w http.ResponseWriter, r *http.Request, key string, current status.Status) {
	if !current.IsTerminal() && current.Kind() != status.KindPrevious {
		awaited, err := h.backend.Await(r.Context(), key)
		switch {
		case errors.Is(err, service.ErrStillProcessing):
			middleware.WriteText(w, http.StatusAccepted, []byte(pendingMessage(key)))
			return
		case err != nil:
			middleware.WriteError(w, r, err, h.logger)
			return
		}
		current = awaited
	}

	switch current.Kind() {
	case status.KindDone:
		middleware.WriteText(w, http.StatusOK, current.Report())
	case status.KindError:
		middleware.WriteText(w, http.StatusInternalServerError, []byte(current.Message()+"\n"))
	case status.KindPrevious:
		middleware.WriteText(w, http.StatusPartialContent, previousMessage(current))
	case status.KindReady, status.KindInProgress, status.KindCloned:
		middleware.WriteText(w, http.StatusAccepted, []byte(pendingMessage(key)))
	default:
		middleware.WriteError(w, r, fmt.Errorf("unknown status %q", current.Kind()), h.logger)
	}
}

func (h *ReportsRouter) regular(w http.ResponseWriter, r *http.Request, key string, current status.Status) {
	switch current.Kind() {
	case status.KindDone:
		middleware.WriteText(w, http.StatusOK, current.Report())
	case status.KindReady, status.KindInProgress, status.KindCloned:
		w.Header().Set("Location", "/ws"+r.URL.Path)
		middleware.WriteJSON(w, http.StatusAccepted, statusResponse{Key: key, Status: current})
	case status.KindPrevious:
		middleware.WriteJSON(w, http.StatusPartialContent, statusResponse{Key: key, Status: current})
	case status.KindError:
		middleware.WriteJSON(w, http.StatusInternalServerError, middleware.ErrorResponse{Error: current.Message()})
	default:
		middleware.WriteError(w, r, fmt.Errorf("unknown status %q", current.Kind()), h.logger)
	}
}

func isTerminalAgent(agent string) bool {
	for _, fragment := range terminalAgents {
		if strings.Contains(agent, fragment) {
			return true
		}
	}
	return false
}

func pendingMessage(key string) string {
	return fmt.Sprintf("Your request %s has been received and we are currently processing it. Please wait for a 5 minutes and try again.\n", key)
}

func previousMessage(s status.Status) []byte {
	header := fmt.Sprintf("The information about the repository provided below is accurate as of %s and applies to commit %s.\n",
		s.AsOf().UTC().Format(time.RFC3339), s.Commit())
	out := make([]byte, 0, len(header)+len(s.Report())+len(previousReminder))
	out = append(out, header...)
	out = append(out, s.Report()...)
	return append(out, previousReminder...)
}
