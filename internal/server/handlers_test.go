package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/tsunagu/internal/analysis"
	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/graphview"
	"github.com/hyperjump/tsunagu/internal/metrics"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/notes"
	"github.com/hyperjump/tsunagu/internal/search"
	"github.com/hyperjump/tsunagu/internal/storage"
	"go.uber.org/zap"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *notes.MemoryRepository) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage:  config.StorageConfig{DatabasePath: filepath.Join(dir, "graph.db")},
		Analysis: config.AnalysisConfig{SimilarityThreshold: config.Float64(0.2)},
		Keyword:  config.KeywordConfig{Weighting: "frequency"},
	}
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	repo := notes.NewMemoryRepository(
		&models.Note{ID: "projects/raft", Title: "Raft", Body: "raft paxos quorum leader", ModifiedAt: now},
		&models.Note{ID: "paxos", Title: "Paxos", Body: "raft paxos quorum acceptor", ModifiedAt: now},
		&models.Note{ID: "soup", Title: "Soup", Body: "tomato basil garlic", ModifiedAt: now},
	)
	orch, err := analysis.New(cfg, store, map[string]notes.Repository{"research": repo}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(orch, graphview.New(store), cfg, zap.NewNop(), opts...), repo
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestTriggerAnalysisAndReadGraph(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	w := do(t, h, http.MethodPost, "/api/v1/workspaces/research/analysis?mode=full")
	if w.Code != http.StatusOK {
		t.Fatalf("trigger status: got %d body %s", w.Code, w.Body.String())
	}
	var summary struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		ProcessedCount int    `json:"processed_count"`
		EdgesUpserted  int    `json:"edges_upserted"`
	}
	if err := json.NewDecoder(w.Body).Decode(&summary); err != nil {
		t.Fatal(err)
	}
	if summary.Status != "completed" || summary.ProcessedCount != 3 || summary.EdgesUpserted != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	w = do(t, h, http.MethodGet, "/api/v1/workspaces/research/runs/"+summary.ID)
	if w.Code != http.StatusOK {
		t.Errorf("get run status: got %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/v1/workspaces/research/graph")
	if w.Code != http.StatusOK {
		t.Fatalf("graph status: got %d", w.Code)
	}
	var view models.GraphView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if len(view.Nodes) != 3 || len(view.Edges) != 1 {
		t.Fatalf("graph: %d nodes, %d edges", len(view.Nodes), len(view.Edges))
	}
	if view.Edges[0].Source != "paxos" || view.Edges[0].Target != "projects/raft" {
		t.Errorf("edge: %+v", view.Edges[0])
	}

	w = do(t, h, http.MethodGet, "/api/v1/workspaces/research/notes/projects%2Fraft/related?k=5")
	if w.Code != http.StatusOK {
		t.Fatalf("related status: got %d body %s", w.Code, w.Body.String())
	}
	var related struct {
		NoteID  string               `json:"note_id"`
		Related []models.RelatedNote `json:"related"`
	}
	if err := json.NewDecoder(w.Body).Decode(&related); err != nil {
		t.Fatal(err)
	}
	if related.NoteID != "projects/raft" || len(related.Related) != 1 || related.Related[0].NoteID != "paxos" {
		t.Errorf("related: %+v", related)
	}
}

func TestTriggerAnalysis_badMode(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Router(), http.MethodPost, "/api/v1/workspaces/research/analysis?mode=partial")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()
	for _, tc := range []struct {
		method, target string
	}{
		{http.MethodPost, "/api/v1/workspaces/missing/analysis"},
		{http.MethodGet, "/api/v1/workspaces/missing/graph"},
		{http.MethodGet, "/api/v1/workspaces/research/runs/nope"},
		{http.MethodGet, "/api/v1/workspaces/research/notes/unknown/related"},
		{http.MethodDelete, "/api/v1/workspaces/research/analysis"},
	} {
		if w := do(t, h, tc.method, tc.target); w.Code != http.StatusNotFound {
			t.Errorf("%s %s: got %d, want 404", tc.method, tc.target, w.Code)
		}
	}
}

func TestGetRelated_badK(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Router(), http.MethodGet, "/api/v1/workspaces/research/notes/soup/related?k=many")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestSearch(t *testing.T) {
	srv, repo := newTestServer(t)
	engine := search.NewEngine(srv.config, map[string]notes.Repository{"research": repo}, nil)
	t.Cleanup(func() { _ = engine.Close() })
	srv.search = engine
	h := srv.Router()

	w := do(t, h, http.MethodGet, "/api/v1/workspaces/research/search?q=acceptor&k=3")
	if w.Code != http.StatusOK {
		t.Fatalf("search status: got %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Query   string                `json:"query"`
		Results []models.SearchResult `json:"results"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Query != "acceptor" || len(resp.Results) != 1 || resp.Results[0].NoteID != "paxos" || resp.Results[0].Title != "Paxos" {
		t.Errorf("search response: %+v", resp)
	}

	for _, tc := range []struct {
		target string
		want   int
	}{
		{"/api/v1/workspaces/research/search", http.StatusBadRequest},
		{"/api/v1/workspaces/research/search?q=raft&k=many", http.StatusBadRequest},
		{"/api/v1/workspaces/missing/search?q=raft", http.StatusNotFound},
	} {
		if w := do(t, h, http.MethodGet, tc.target); w.Code != tc.want {
			t.Errorf("%s: got %d, want %d", tc.target, w.Code, tc.want)
		}
	}
}

func TestSearch_notEnabled(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Router(), http.MethodGet, "/api/v1/workspaces/research/search?q=raft")
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, WithWatchService(&mockWatchService{dirs: []string{"/notes"}}))
	w := do(t, srv.Router(), http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "ok" || out["backend"] != "sqlite" {
		t.Errorf("health: %v", out)
	}
	if _, ok := out["database_size_bytes"]; !ok {
		t.Error("health should report the database size")
	}
	if dirs, ok := out["watched_directories"].([]interface{}); !ok || len(dirs) != 1 {
		t.Errorf("watched_directories: %v", out["watched_directories"])
	}
}

func TestMetricsRoute(t *testing.T) {
	exporter := metrics.NewPrometheus()
	exporter.IncRun("research", "completed")
	srv, _ := newTestServer(t, WithMetricsHandler(exporter.Handler()))
	w := do(t, srv.Router(), http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "tsunagu_analysis_runs_total") {
		t.Error("metrics output missing run counter")
	}

	plain, _ := newTestServer(t)
	if w := do(t, plain.Router(), http.MethodGet, "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("metrics without exporter: got %d, want 404", w.Code)
	}
}

func TestListWorkspaces(t *testing.T) {
	srv, _ := newTestServer(t)
	w := do(t, srv.Router(), http.MethodGet, "/api/v1/workspaces")
	var out struct {
		Workspaces []workspaceInfo `json:"workspaces"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Workspaces) != 1 || out.Workspaces[0].ID != "research" || out.Workspaces[0].RunningID != "" {
		t.Errorf("workspaces: %+v", out.Workspaces)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{failure.New(failure.RunAlreadyInProgress, "trigger", nil), http.StatusConflict},
		{fmt.Errorf("wrapped: %w", failure.New(failure.NotFound, "get", nil)), http.StatusNotFound},
		{failure.New(failure.InvalidInput, "extract", nil), http.StatusBadRequest},
		{failure.New(failure.StorageUnavailable, "commit", nil), http.StatusServiceUnavailable},
		{failure.New(failure.IndexUnavailable, "build", nil), http.StatusServiceUnavailable},
		{context.Canceled, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
