package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/tsunagu/internal/models"
)

func sampleRun() *models.AnalysisRun {
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	return &models.AnalysisRun{
		ID:            "run-1",
		Workspace:     "research",
		Mode:          models.ModeFull,
		Status:        models.RunCompletedWithDegraded,
		StartedAt:     start,
		FinishedAt:    start.Add(1500 * time.Millisecond),
		Processed:     []string{"raft", "paxos"},
		Skipped:       map[string]string{"empty": models.ReasonNoFeatures},
		Failed:        map[string]string{"z": "provider unavailable"},
		EdgesUpserted: 1,
	}
}

func TestWriteRunSummary_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRunSummary(&buf, sampleRun().Summary(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{
		"Run run-1 (research, full): completed-with-degradation",
		"Duration: 1.5s",
		"Processed: 2  Skipped: 1  Failed: 1",
		"Edges upserted: 1",
		"empty: no-features",
		"z: provider unavailable",
	} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteRunSummary_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRunSummary(&buf, sampleRun().Summary(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded["id"] != "run-1" || decoded["processed_count"] != float64(2) {
		t.Errorf("decoded: %v", decoded)
	}
}

func TestWriteGraph_text(t *testing.T) {
	view := &models.GraphView{
		Nodes: []models.ViewNode{{ID: "paxos", Label: "Paxos"}, {ID: "raft", Label: "raft"}},
		Edges: []models.ViewEdge{{Source: "paxos", Target: "raft", Type: models.RelationSharedTerms, Value: 0.3, Evidence: []string{"quorum", "raft"}}},
	}
	var buf bytes.Buffer
	if err := WriteGraph(&buf, view, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"2 notes, 1 relationships", "0.3000  Paxos (paxos) <-> raft", "quorum, raft"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteRelated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRelated(&buf, "raft", nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No related notes for raft") {
		t.Errorf("unexpected empty output: %q", buf.String())
	}

	buf.Reset()
	if err := WriteRelated(&buf, "raft", nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"related": []`) {
		t.Errorf("empty related should encode as []: %s", buf.String())
	}

	buf.Reset()
	related := []models.RelatedNote{{NoteID: "paxos", Title: "Paxos", Strength: 0.42}}
	if err := WriteRelated(&buf, "raft", related, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), " 1. 0.4200  Paxos (paxos)") {
		t.Errorf("unexpected text: %q", buf.String())
	}
}

func TestWriteSearch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearch(&buf, "raft", nil, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `No notes match "raft"`) {
		t.Errorf("unexpected empty output: %q", buf.String())
	}

	buf.Reset()
	if err := WriteSearch(&buf, "raft", nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"results": []`) {
		t.Errorf("empty results should encode as []: %s", buf.String())
	}

	buf.Reset()
	results := []models.SearchResult{
		{NoteID: "raft", Title: "Raft", Score: 1, Rank: 1},
		{NoteID: "paxos", Score: 0.25, Rank: 2},
	}
	if err := WriteSearch(&buf, "raft", results, OutputText); err != nil {
		t.Fatal(err)
	}
	want := " 1. 1.0000  Raft (raft)\n 2. 0.2500  paxos\n"
	if buf.String() != want {
		t.Errorf("text = %q, want %q", buf.String(), want)
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "text": OutputText, "json": OutputJSON} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		maxWords int
		want     string
	}{
		{"empty", "", 3, ""},
		{"few words", "one two", 3, "one two"},
		{"exact", "one two three", 3, "one two three"},
		{"more", "one two three four", 3, "one two three..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateWords(tt.s, tt.maxWords); got != tt.want {
				t.Errorf("TruncateWords(%q, %d) = %q, want %q", tt.s, tt.maxWords, got, tt.want)
			}
		})
	}
}
