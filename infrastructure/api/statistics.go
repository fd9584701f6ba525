package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/helixml/branchscope/application/service"
	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/infrastructure/api/middleware"
)

// rankingEntry is one row of a statistics answer. Only the field of the
// requested ranking is set.
type rankingEntry struct {
	Host       string     `json:"host"`
	Owner      string     `json:"owner"`
	Repository string     `json:"repository"`
	Branch     string     `json:"branch"`
	SizeBytes  int64      `json:"size_bytes,omitempty"`
	Size       string     `json:"size,omitempty"`
	VisitedAt  *time.Time `json:"visited_at,omitempty"`
	Count      int64      `json:"count,omitempty"`
}

func newRankingEntry(ref branch.Reference) rankingEntry {
	return rankingEntry{
		Host:       ref.Host(),
		Owner:      ref.Owner(),
		Repository: ref.Repository(),
		Branch:     ref.Branch(),
	}
}

// StatisticsRouter serves the analysis rankings.
type StatisticsRouter struct {
	source StatisticsSource
	logger *slog.Logger
}

// NewStatisticsRouter creates a StatisticsRouter.
func NewStatisticsRouter(source StatisticsSource, logger *slog.Logger) *StatisticsRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatisticsRouter{source: source, logger: logger}
}

// Routes returns the ranking routes, to be mounted at /api/statistics.
func (h *StatisticsRouter) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/largest/{limit}", h.largest)
	r.Get("/recent/{limit}", h.recent)
	r.Get("/popular/{limit}", h.popular)
	return r
}

func (h *StatisticsRouter) largest(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	ranks, err := h.source.Largest(r.Context(), limit)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	entries := make([]rankingEntry, 0, len(ranks))
	for _, rank := range ranks {
		e := newRankingEntry(rank.Reference)
		e.SizeBytes = rank.SizeBytes
		e.Size = humanize.IBytes(uint64(max(rank.SizeBytes, 0)))
		entries = append(entries, e)
	}
	middleware.WriteJSON(w, http.StatusOK, entries)
}

func (h *StatisticsRouter) recent(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	visits, err := h.source.Recent(r.Context(), limit)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	entries := make([]rankingEntry, 0, len(visits))
	for _, visit := range visits {
		e := newRankingEntry(visit.Reference)
		at := visit.VisitedAt.UTC()
		e.VisitedAt = &at
		entries = append(entries, e)
	}
	middleware.WriteJSON(w, http.StatusOK, entries)
}

func (h *StatisticsRouter) popular(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	counts, err := h.source.Popular(r.Context(), limit)
	if err != nil {
		middleware.WriteError(w, r, err, h.logger)
		return
	}
	entries := make([]rankingEntry, 0, len(counts))
	for _, c := range counts {
		e := newRankingEntry(c.Reference)
		e.Count = c.Count
		entries = append(entries, e)
	}
	middleware.WriteJSON(w, http.StatusOK, entries)
}

func limitParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "limit")
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse limit %q: %w", raw, service.ErrInvalidLimit)
	}
	return limit, nil
}
