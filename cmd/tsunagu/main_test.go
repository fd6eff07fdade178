package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/models"
)

func TestLoadConfig_prefersWorkingDirectoryConfig(t *testing.T) {
	dir := t.TempDir()
	content := "storage:\n  database_path: ./graph.db\nworkspaces:\n  research:\n    notes_dir: ./notes\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(resolved) != "config.yaml" || filepath.Dir(resolved) == filepath.Dir(defaultConfigPath) {
		t.Errorf("resolved = %s, want the working directory config", resolved)
	}
	if _, ok := cfg.Workspaces["research"]; !ok {
		t.Errorf("workspaces = %v", cfg.Workspaces)
	}
}

func TestWorkspaceIDs(t *testing.T) {
	cfg := &config.Config{Workspaces: map[string]config.WorkspaceConfig{
		"zeta": {}, "alpha": {}, "mid": {},
	}}
	if got := workspaceIDs(cfg); !reflect.DeepEqual(got, []string{"alpha", "mid", "zeta"}) {
		t.Errorf("workspaceIDs = %v", got)
	}
}

func TestAPIClient(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.EscapedPath()+"?"+r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/analysis"):
			_ = json.NewEncoder(w).Encode(&models.RunSummary{
				AnalysisRun:    &models.AnalysisRun{ID: "run-1", Status: models.RunCompleted},
				ProcessedCount: 2,
			})
		case strings.HasSuffix(r.URL.Path, "/graph"):
			_ = json.NewEncoder(w).Encode(&models.GraphView{Nodes: []models.ViewNode{{ID: "a", Label: "a"}}})
		case strings.HasSuffix(r.URL.Path, "/related"):
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "note not found"})
		case strings.HasSuffix(r.URL.Path, "/search"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"query":   r.URL.Query().Get("q"),
				"results": []models.SearchResult{{NoteID: "raft", Rank: 1, Score: 1}},
			})
		}
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL + "/")
	summary, err := c.TriggerAnalysis("research", models.ModeIncremental)
	if err != nil {
		t.Fatal(err)
	}
	if summary.ID != "run-1" || summary.ProcessedCount != 2 {
		t.Errorf("summary = %+v", summary)
	}
	view, err := c.GetGraph("research")
	if err != nil || len(view.Nodes) != 1 {
		t.Errorf("graph = %+v, %v", view, err)
	}
	_, err = c.GetRelated("research", "projects/raft", 3)
	if err == nil || !strings.Contains(err.Error(), "404: note not found") {
		t.Errorf("related error = %v", err)
	}
	results, err := c.Search("research", "leader election", 4)
	if err != nil || len(results) != 1 || results[0].NoteID != "raft" {
		t.Errorf("search = %+v, %v", results, err)
	}

	want := []string{
		"POST /api/v1/workspaces/research/analysis?mode=incremental",
		"GET /api/v1/workspaces/research/graph?",
		"GET /api/v1/workspaces/research/notes/projects%2Fraft/related?k=3",
		"GET /api/v1/workspaces/research/search?q=leader+election&k=4",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("requests = %v, want %v", paths, want)
	}
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "tsunagu version ") {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestRelatedCommand_requiresNoteID(t *testing.T) {
	rootCmd.SetArgs([]string{"related"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetErr(nil)
	})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected an argument error")
	}
}
