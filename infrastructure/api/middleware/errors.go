package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/helixml/branchscope/application/service"
	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/internal/log"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	ID    string `json:"id,omitempty"`
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, branch.ErrInvalidReference), errors.Is(err, service.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, branch.ErrBranchNotFound), errors.Is(err, branch.ErrRemoteUnavailable), errors.Is(err, branch.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, branch.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrStillProcessing):
		return http.StatusAccepted
	case errors.Is(err, service.ErrClientClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	code := StatusCode(err)
	id := log.CorrelationID(r.Context())

	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "request error",
		"status", code,
		"error", err.Error(),
		"path", r.URL.Path,
	)

	WriteJSON(w, code, ErrorResponse{Error: err.Error(), ID: id})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteText writes a plain text response.
func WriteText(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
