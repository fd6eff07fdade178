package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/storage"
	"go.uber.org/zap"
)

type workspaceInfo struct {
	ID        string `json:"id"`
	RunningID string `json:"running_run_id,omitempty"`
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ids := s.analyzer.Workspaces()
	out := make([]workspaceInfo, 0, len(ids))
	for _, id := range ids {
		info := workspaceInfo{ID: id}
		if runID, ok := s.analyzer.Running(id); ok {
			info.RunningID = runID
		}
		out = append(out, info)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"workspaces": out})
}

func (s *Server) handleTriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	ws := chi.URLParam(r, "ws")
	mode, ok := models.ParseRunMode(r.URL.Query().Get("mode"))
	if !ok {
		s.respondError(w, http.StatusBadRequest, "mode must be full or incremental")
		return
	}
	s.logger.Debug("trigger analysis request", zap.String("workspace", ws), zap.String("mode", string(mode)))

	// A run outlives the request; DELETE on the same resource cancels it.
	summary, err := s.analyzer.TriggerAnalysis(context.WithoutCancel(r.Context()), ws, mode)
	if err != nil {
		status := statusFor(err)
		if summary == nil {
			s.respondError(w, status, err.Error())
			return
		}
		s.respondJSON(w, status, map[string]interface{}{"error": err.Error(), "run": summary})
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCancelAnalysis(w http.ResponseWriter, r *http.Request) {
	ws := chi.URLParam(r, "ws")
	if !s.analyzer.HasWorkspace(ws) {
		s.respondError(w, http.StatusNotFound, "workspace not found")
		return
	}
	runID, running := s.analyzer.Running(ws)
	if !running || !s.analyzer.Cancel(ws) {
		s.respondError(w, http.StatusNotFound, "no analysis run in progress")
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "cancelling"})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.analyzer.GetRun(r.Context(), chi.URLParam(r, "ws"), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, run.Summary())
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	ws := chi.URLParam(r, "ws")
	if !s.analyzer.HasWorkspace(ws) {
		s.respondError(w, http.StatusNotFound, "workspace not found")
		return
	}
	view, err := s.graph.GetGraph(r.Context(), ws)
	if err != nil {
		s.logger.Error("graph read failed", zap.String("workspace", ws), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetRelated(w http.ResponseWriter, r *http.Request) {
	ws := chi.URLParam(r, "ws")
	if !s.analyzer.HasWorkspace(ws) {
		s.respondError(w, http.StatusNotFound, "workspace not found")
		return
	}
	// Note IDs may contain slashes, sent as %2F.
	noteID, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || noteID == "" {
		s.respondError(w, http.StatusBadRequest, "invalid note id")
		return
	}
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		k, err = strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
	}
	related, err := s.graph.GetRelated(r.Context(), ws, noteID, k)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"note_id": noteID, "related": related})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		s.respondError(w, http.StatusNotFound, "search is not enabled")
		return
	}
	ws := chi.URLParam(r, "ws")
	if !s.analyzer.HasWorkspace(ws) {
		s.respondError(w, http.StatusNotFound, "workspace not found")
		return
	}
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		var err error
		k, err = strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
	}
	results, err := s.search.Search(r.Context(), ws, query, k)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": query, "results": results})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":     "ok",
		"workspaces": s.analyzer.Workspaces(),
	}
	if s.config != nil {
		resp["backend"] = s.config.Storage.Backend
		resp["extraction_mode"] = s.config.Analysis.ExtractionMode
		if s.config.Storage.Backend == "sqlite" {
			if size, err := storage.DatabaseSizeBytes(s.config.Storage.DatabasePath); err == nil {
				resp["database_size_bytes"] = size
			}
		}
	}
	if s.watch != nil {
		resp["watched_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch failure.KindOf(err) {
	case failure.RunAlreadyInProgress:
		return http.StatusConflict
	case failure.NotFound:
		return http.StatusNotFound
	case failure.InvalidInput:
		return http.StatusBadRequest
	case failure.StorageUnavailable, failure.IndexUnavailable, failure.ProviderUnavailable:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
