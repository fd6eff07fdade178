// Package cli provides output formatting for the tsunagu command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts text or json.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteRunSummary writes the outcome of an analysis run.
func WriteRunSummary(w io.Writer, summary *models.RunSummary, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, summary)
	}
	fmt.Fprintf(w, "Run %s (%s, %s): %s\n", summary.ID, summary.Workspace, summary.Mode, summary.Status)
	if !summary.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Processed: %d  Skipped: %d  Failed: %d\n",
		summary.ProcessedCount, summary.SkippedCount, summary.FailedCount)
	fmt.Fprintf(w, "Edges upserted: %d  deleted: %d\n", summary.EdgesUpserted, summary.EdgesDeleted)
	writeReasons(w, "Skipped", summary.Skipped)
	writeReasons(w, "Failed", summary.Failed)
	if summary.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", summary.Error)
	}
	return nil
}

func writeReasons(w io.Writer, label string, reasons map[string]string) {
	if len(reasons) == 0 {
		return
	}
	ids := make([]string, 0, len(reasons))
	for id := range reasons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintf(w, "\n--- %s ---\n", label)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s: %s\n", id, utils.Truncate(reasons[id], 120))
	}
}

// WriteGraph writes a graph view.
func WriteGraph(w io.Writer, view *models.GraphView, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, view)
	}
	fmt.Fprintf(w, "%d notes, %d relationships\n", len(view.Nodes), len(view.Edges))
	labels := make(map[string]string, len(view.Nodes))
	for _, n := range view.Nodes {
		labels[n.ID] = n.Label
	}
	for _, e := range view.Edges {
		fmt.Fprintf(w, "%.4f  %s <-> %s  [%s]\n", e.Value, labelFor(labels, e.Source), labelFor(labels, e.Target), e.Type)
		if len(e.Evidence) > 0 {
			fmt.Fprintf(w, "        %s\n", TruncateWords(strings.Join(e.Evidence, ", "), 12))
		}
	}
	return nil
}

func labelFor(labels map[string]string, id string) string {
	if l := labels[id]; l != "" && l != id {
		return fmt.Sprintf("%s (%s)", l, id)
	}
	return id
}

// WriteRelated writes the notes related to noteID.
func WriteRelated(w io.Writer, noteID string, related []models.RelatedNote, format OutputFormat) error {
	if format == OutputJSON {
		if related == nil {
			related = []models.RelatedNote{}
		}
		return writeJSON(w, map[string]interface{}{"note_id": noteID, "related": related})
	}
	if len(related) == 0 {
		fmt.Fprintf(w, "No related notes for %s\n", noteID)
		return nil
	}
	fmt.Fprintf(w, "Related to %s:\n", noteID)
	for i, r := range related {
		name := r.NoteID
		if r.Title != "" {
			name = fmt.Sprintf("%s (%s)", r.Title, r.NoteID)
		}
		fmt.Fprintf(w, "%2d. %.4f  %s\n", i+1, r.Strength, name)
		if len(r.Evidence) > 0 {
			fmt.Fprintf(w, "    %s\n", TruncateWords(strings.Join(r.Evidence, ", "), 12))
		}
	}
	return nil
}

// WriteSearch writes the results of a workspace search.
func WriteSearch(w io.Writer, query string, results []models.SearchResult, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []models.SearchResult{}
		}
		return writeJSON(w, map[string]interface{}{"query": query, "results": results})
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "No notes match %q\n", query)
		return nil
	}
	for _, r := range results {
		name := r.NoteID
		if r.Title != "" {
			name = fmt.Sprintf("%s (%s)", r.Title, r.NoteID)
		}
		fmt.Fprintf(w, "%2d. %.4f  %s\n", r.Rank, r.Score, name)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
