package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/infrastructure/api/middleware"
)

const writeWait = 10 * time.Second

// unknownKeyReason closes a stream for a branch nobody asked to analyse.
const unknownKeyReason = "no analysis requested"

// StreamRouter pushes status changes of one branch over a websocket until
// the analysis reaches a terminal status.
type StreamRouter struct {
	backend  Backend
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewStreamRouter creates a StreamRouter. Cross-origin checks are left to
// the CORS middleware, so every origin may upgrade.
func NewStreamRouter(backend Backend, logger *slog.Logger) *StreamRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamRouter{
		backend: backend,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Routes returns the stream routes, to be mounted at /ws/{host}/{owner}/{repo}.
func (h *StreamRouter) Routes() chi.Router {
	r := chi.NewRouter()
	branchRoutes(r, h.stream)
	return r
}

func (h *StreamRouter) stream(w http.ResponseWriter, r *http.Request) {
	t := targetFrom(r)
	name := t.branch
	if name == "" {
		def, err := h.backend.DefaultBranchRemote(r.Context(), t.host, t.owner, t.repository)
		if err != nil {
			middleware.WriteError(w, r, err, h.logger)
			return
		}
		name = def
	}
	ref := branch.NewReference(t.host, t.owner, t.repository, name)
	if err := ref.Validate(); err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	key := ref.UniqueName()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.DebugContext(r.Context(), "websocket upgrade failed", "key", key, "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Hijacked connections do not cancel the request context, so a reader
	// watches for the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sent := 0
	for s := range h.backend.Subscribe(ctx, key) {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(statusResponse{Key: key, Status: s}); err != nil {
			h.logger.DebugContext(ctx, "websocket write failed", "key", key, "error", err)
			return
		}
		sent++
	}

	reason := ""
	if sent == 0 {
		reason = unknownKeyReason
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
