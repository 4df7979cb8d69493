// Package handlers provides read-mostly HTTP handlers over persisted
// debate runs and the memory store: browse runs, inspect state, export
// reports, and resolve pending forecasts.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alienxp03/thinktank/internal/core"
	"github.com/alienxp03/thinktank/internal/export"
	"github.com/alienxp03/thinktank/internal/memory"
	"github.com/alienxp03/thinktank/internal/persist"
	"github.com/alienxp03/thinktank/internal/runner"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	runsDir string
	memory  *memory.Store
}

// New creates a new Handler. The memory store may be nil, in which case
// the memory endpoints report 503.
func New(runsDir string, store *memory.Store) *Handler {
	return &Handler{runsDir: runsDir, memory: store}
}

// Router builds the chi router with all routes registered.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/api/runs", h.handleListRuns)
	r.Get("/api/runs/{name}", h.handleGetRun)
	r.Get("/api/runs/{name}/export/{format}", h.handleExportRun)
	r.Get("/api/runs/{name}/verify", h.handleVerifyRun)

	r.Get("/api/lessons", h.handleListLessons)
	r.Get("/api/forecasts", h.handleListForecasts)
	r.Post("/api/forecasts/{id}/resolve", h.handleResolveForecast)
	r.Get("/api/performance", h.handlePerformance)
	r.Get("/api/brier", h.handleBrier)

	return r
}

type runSummary struct {
	Name      string            `json:"name"`
	SpecTitle string            `json:"spec_title"`
	Status    core.DebateStatus `json:"status"`
	Rounds    int               `json:"rounds"`
	Claims    int               `json:"claims"`
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	dirs, err := persist.ListRuns(h.runsDir)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	summaries := make([]runSummary, 0, len(dirs))
	for _, dir := range dirs {
		debate, err := persist.LoadState(dir)
		if err != nil {
			slog.Warn("Skipping unreadable run", "dir", dir, "error", err)
			continue
		}
		summaries = append(summaries, runSummary{
			Name:      filepath.Base(dir),
			SpecTitle: debate.SpecTitle,
			Status:    debate.Status,
			Rounds:    len(debate.Rounds),
			Claims:    debate.TotalClaims(),
		})
	}
	h.json(w, summaries)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	debate, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	h.json(w, debate)
}

func (h *Handler) handleExportRun(w http.ResponseWriter, r *http.Request) {
	debate, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	format := export.Format(chi.URLParam(r, "format"))
	exporter, err := export.GetExporter(format)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch format {
	case export.FormatPDF:
		w.Header().Set("Content-Type", "application/pdf")
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	}
	w.Header().Set("Content-Disposition",
		"attachment; filename="+export.GenerateFilename(debate, exporter.FileExtension()))

	if err := exporter.Export(debate, w); err != nil {
		slog.Error("Export failed", "debate", debate.ID, "format", format, "error", err)
	}
}

func (h *Handler) handleVerifyRun(w http.ResponseWriter, r *http.Request) {
	debate, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	if err := runner.Verify(debate); err != nil {
		h.json(w, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	h.json(w, map[string]any{"ok": true, "moves": len(debate.Moves())})
}

func (h *Handler) handleListLessons(w http.ResponseWriter, r *http.Request) {
	if h.memory == nil {
		h.jsonError(w, "memory store not available", http.StatusServiceUnavailable)
		return
	}
	lessons, err := h.memory.ListLessons()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, lessons)
}

func (h *Handler) handleListForecasts(w http.ResponseWriter, r *http.Request) {
	if h.memory == nil {
		h.jsonError(w, "memory store not available", http.StatusServiceUnavailable)
		return
	}
	forecasts, err := h.memory.ListForecasts()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, forecasts)
}

func (h *Handler) handleResolveForecast(w http.ResponseWriter, r *http.Request) {
	if h.memory == nil {
		h.jsonError(w, "memory store not available", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Outcome *bool `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Outcome == nil {
		h.jsonError(w, "body must be {\"outcome\": true|false}", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	f, err := h.memory.ResolveForecast(id, *body.Outcome)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrAlreadyResolved):
			h.jsonError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, core.ErrForecastNotFound):
			h.jsonError(w, err.Error(), http.StatusNotFound)
		default:
			h.jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	h.json(w, f)
}

func (h *Handler) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if h.memory == nil {
		h.jsonError(w, "memory store not available", http.StatusServiceUnavailable)
		return
	}
	perf, err := h.memory.Performance()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, perf)
}

func (h *Handler) handleBrier(w http.ResponseWriter, r *http.Request) {
	if h.memory == nil {
		h.jsonError(w, "memory store not available", http.StatusServiceUnavailable)
		return
	}
	mean, perExpert, ok, err := h.memory.BrierSummary()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, map[string]any{
		"resolved":   ok,
		"mean":       mean,
		"per_expert": perExpert,
	})
}

// loadRun resolves the {name} path parameter to a run under runsDir and
// loads its state. Path traversal outside runsDir is rejected.
func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*core.Debate, bool) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) {
		h.jsonError(w, "invalid run name", http.StatusBadRequest)
		return nil, false
	}

	debate, err := persist.LoadState(filepath.Join(h.runsDir, name))
	if err != nil {
		h.jsonError(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	return debate, true
}

func (h *Handler) json(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
