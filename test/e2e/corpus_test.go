package e2e

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildCorpus_ClusterSizes(t *testing.T) {
	c := BuildCorpus(5)
	if len(c.Notes) != 30 {
		t.Fatalf("expected 30 notes, got %d", len(c.Notes))
	}
	for name, ids := range c.Clusters {
		if len(ids) != 5 {
			t.Errorf("cluster %s has %d notes", name, len(ids))
		}
	}
}

func TestBuildCorpus_VocabulariesDisjoint(t *testing.T) {
	c := BuildCorpus(5)
	owner := map[string]string{}
	for _, n := range c.Notes {
		for _, w := range strings.Fields(strings.TrimSuffix(n.Body, ".")) {
			if prev, ok := owner[w]; ok && prev != n.Cluster {
				t.Fatalf("word %q appears in clusters %s and %s", w, prev, n.Cluster)
			}
			owner[w] = n.Cluster
		}
	}
}

func TestBuildCorpus_UniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for _, n := range BuildCorpus(8).Notes {
		if seen[n.ID] {
			t.Fatalf("duplicate id %s", n.ID)
		}
		seen[n.ID] = true
	}
}

func TestCorpus_WriteTo(t *testing.T) {
	dir := t.TempDir()
	c := BuildCorpus(2)
	if err := c.WriteTo(dir); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "music", "note-b.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# music\n") {
		t.Errorf("unexpected file content: %q", data)
	}
}
