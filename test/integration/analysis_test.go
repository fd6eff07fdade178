// Package integration provides end-to-end tests over the HTTP API (requires real storage).
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/tsunagu/internal/analysis"
	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/graphview"
	"github.com/hyperjump/tsunagu/internal/metrics"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/notes"
	"github.com/hyperjump/tsunagu/internal/search"
	"github.com/hyperjump/tsunagu/internal/server"
	"github.com/hyperjump/tsunagu/internal/storage"
	"go.uber.org/zap"
)

func writeNote(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newStack(t *testing.T, mode string) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	notesDir := filepath.Join(root, "notes")
	writeNote(t, notesDir, "distributed/raft.md", "# Raft\ntags: consensus, systems\n\nraft consensus leader election log replication quorum")
	writeNote(t, notesDir, "distributed/paxos.md", "# Paxos\ntags: consensus\n\npaxos consensus proposer acceptor quorum replication")
	writeNote(t, notesDir, "kitchen/soup.md", "# Tomato soup\n\ntomato basil garlic simmer olive oil")
	writeNote(t, notesDir, "kitchen/empty.md", "# The\n\nthe and of")
	writeNote(t, notesDir, "attachments/diagram.png", "not a note")

	cfg := &config.Config{}
	cfg.Analysis.ExtractionMode = mode
	cfg.Analysis.SimilarityThreshold = config.Float64(0.2)
	cfg.Keyword.Weighting = "frequency"
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimensions = 256
	cfg.Storage.DatabasePath = filepath.Join(root, "graph.db")
	cfg.Workspaces = map[string]config.WorkspaceConfig{"lab": {NotesDir: notesDir}}
	cfg.Metrics.Enabled = true
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	store, err := storage.Open(context.Background(), cfg.Storage, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	var provider embedding.Provider
	if mode == "embedding" {
		provider, err = embedding.NewProvider(cfg.Embedding, logger)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = provider.Close() })
	}

	ws := cfg.Workspaces["lab"]
	repos := map[string]notes.Repository{"lab": notes.NewOsDirRepository(ws.NotesDir, ws.Include)}
	exporter := metrics.NewPrometheus()
	engine := search.NewEngine(cfg, repos, provider, search.WithLogger(logger))
	t.Cleanup(func() { _ = engine.Close() })
	orch, err := analysis.New(cfg, store, repos, provider,
		analysis.WithLogger(logger), analysis.WithMetrics(exporter), analysis.WithSearchIndex(engine))
	if err != nil {
		t.Fatal(err)
	}
	srv := server.NewServer(orch, graphview.New(store), cfg, logger,
		server.WithMetricsHandler(exporter.Handler()), server.WithSearch(engine))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, notesDir
}

func getJSON(t *testing.T, method, url string, want int, out interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, want)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIntegration_KeywordAnalysisOverHTTP(t *testing.T) {
	ts, _ := newStack(t, "keyword")
	base := ts.URL + "/api/v1/workspaces/lab"

	var summary struct {
		ID      string            `json:"id"`
		Status  string            `json:"status"`
		Skipped map[string]string `json:"skipped"`
	}
	getJSON(t, http.MethodPost, base+"/analysis?mode=full", http.StatusOK, &summary)
	if summary.Status != string(models.RunCompleted) {
		t.Errorf("status = %s", summary.Status)
	}
	if summary.Skipped["kitchen/empty"] != models.ReasonNoFeatures {
		t.Errorf("empty note should be skipped: %v", summary.Skipped)
	}

	var run models.RunSummary
	getJSON(t, http.MethodGet, base+"/runs/"+summary.ID, http.StatusOK, &run)
	if run.AnalysisRun == nil || run.ID != summary.ID {
		t.Errorf("run lookup = %+v", run)
	}

	var view models.GraphView
	getJSON(t, http.MethodGet, base+"/graph", http.StatusOK, &view)
	if len(view.Nodes) != 4 {
		t.Errorf("graph nodes = %d, want 4", len(view.Nodes))
	}
	if len(view.Edges) != 1 || view.Edges[0].Source != "distributed/paxos" || view.Edges[0].Target != "distributed/raft" {
		t.Fatalf("graph edges = %+v", view.Edges)
	}

	var related struct {
		Related []models.RelatedNote `json:"related"`
	}
	getJSON(t, http.MethodGet, base+"/notes/distributed%2Fraft/related?k=3", http.StatusOK, &related)
	if len(related.Related) != 1 || related.Related[0].Title != "Paxos" {
		t.Errorf("related = %+v", related.Related)
	}
	getJSON(t, http.MethodGet, base+"/notes/kitchen%2Fsoup/related", http.StatusOK, &related)
	if len(related.Related) != 0 {
		t.Errorf("soup should have no related notes: %+v", related.Related)
	}

	var found struct {
		Results []models.SearchResult `json:"results"`
	}
	getJSON(t, http.MethodGet, base+"/search?q=acceptor", http.StatusOK, &found)
	if len(found.Results) != 1 || found.Results[0].NoteID != "distributed/paxos" {
		t.Errorf("search results = %+v", found.Results)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}

func TestIntegration_EmbeddingAnalysis(t *testing.T) {
	ts, notesDir := newStack(t, "embedding")
	base := ts.URL + "/api/v1/workspaces/lab"

	var summary models.RunSummary
	getJSON(t, http.MethodPost, base+"/analysis", http.StatusOK, &summary)
	if !summary.Status.Successful() {
		t.Fatalf("status = %s", summary.Status)
	}

	var view models.GraphView
	getJSON(t, http.MethodGet, base+"/graph", http.StatusOK, &view)
	found := false
	for _, e := range view.Edges {
		if e.Type != models.RelationSemanticSimilarity {
			t.Errorf("edge type = %s", e.Type)
		}
		if e.Source == "distributed/paxos" && e.Target == "distributed/raft" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected raft and paxos to be linked: %+v", view.Edges)
	}

	writeNote(t, notesDir, "distributed/zab.md", "# Zab\n\nzab consensus leader quorum replication")
	getJSON(t, http.MethodPost, base+"/analysis?mode=incremental", http.StatusOK, &summary)
	if summary.Mode != models.ModeIncremental || !summary.Status.Successful() {
		t.Errorf("incremental summary = %+v", summary)
	}
	getJSON(t, http.MethodGet, base+"/graph", http.StatusOK, &view)
	if len(view.Nodes) != 5 {
		t.Errorf("graph nodes after adding zab = %d, want 5", len(view.Nodes))
	}

	var searched struct {
		Results []models.SearchResult `json:"results"`
	}
	getJSON(t, http.MethodGet, base+"/search?q=zab&k=2", http.StatusOK, &searched)
	if len(searched.Results) == 0 || searched.Results[0].NoteID != "distributed/zab" {
		t.Fatalf("search results = %+v", searched.Results)
	}
	if searched.Results[0].SemanticScore <= 0 {
		t.Errorf("published run should add semantic scores: %+v", searched.Results[0])
	}
}

func TestIntegration_UnknownWorkspace(t *testing.T) {
	ts, _ := newStack(t, "keyword")
	getJSON(t, http.MethodPost, ts.URL+"/api/v1/workspaces/nope/analysis", http.StatusNotFound, nil)
	getJSON(t, http.MethodGet, ts.URL+"/api/v1/workspaces/nope/graph", http.StatusNotFound, nil)
}
