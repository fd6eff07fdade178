package keyword

import (
	"context"
	"testing"
)

func termIndexes(t *testing.T) map[string]TermIndex {
	t.Helper()
	out := make(map[string]TermIndex)
	for _, kind := range []string{IndexMemory, IndexBleve} {
		idx, err := NewTermIndex(kind)
		if err != nil {
			t.Fatalf("NewTermIndex(%s): %v", kind, err)
		}
		t.Cleanup(func() { _ = idx.Close() })
		out[kind] = idx
	}
	return out
}

func TestTermIndex_SearchRanksBySharedCount(t *testing.T) {
	ctx := context.Background()
	for kind, idx := range termIndexes(t) {
		t.Run(kind, func(t *testing.T) {
			docs := map[string][]string{
				"c": {"graph", "note"},
				"b": {"graph", "note", "edge"},
				"a": {"graph"},
				"d": {"unrelated"},
			}
			for id, terms := range docs {
				if err := idx.Index(ctx, id, terms); err != nil {
					t.Fatalf("Index: %v", err)
				}
			}
			hits, err := idx.Search(ctx, []string{"graph", "note", "edge", "graph"}, 0)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			wantIDs := []string{"b", "c", "a"}
			wantShared := []int{3, 2, 1}
			if len(hits) != len(wantIDs) {
				t.Fatalf("got %d hits, want %d", len(hits), len(wantIDs))
			}
			for i, h := range hits {
				if h.ID != wantIDs[i] || h.Shared != wantShared[i] {
					t.Errorf("hit %d = %+v, want %s/%d", i, h, wantIDs[i], wantShared[i])
				}
			}
		})
	}
}

func TestTermIndex_LimitAndTies(t *testing.T) {
	ctx := context.Background()
	for kind, idx := range termIndexes(t) {
		t.Run(kind, func(t *testing.T) {
			for _, id := range []string{"z", "y", "x"} {
				if err := idx.Index(ctx, id, []string{"shared"}); err != nil {
					t.Fatalf("Index: %v", err)
				}
			}
			hits, err := idx.Search(ctx, []string{"shared"}, 2)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(hits) != 2 || hits[0].ID != "x" || hits[1].ID != "y" {
				t.Errorf("expected ties broken by id, got %+v %+v", hits[0], hits[1])
			}
		})
	}
}

func TestTermIndex_ReindexAndDelete(t *testing.T) {
	ctx := context.Background()
	for kind, idx := range termIndexes(t) {
		t.Run(kind, func(t *testing.T) {
			if err := idx.Index(ctx, "n1", []string{"alpha"}); err != nil {
				t.Fatalf("Index: %v", err)
			}
			if err := idx.Index(ctx, "n1", []string{"beta"}); err != nil {
				t.Fatalf("Index: %v", err)
			}
			hits, err := idx.Search(ctx, []string{"alpha"}, 0)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(hits) != 0 {
				t.Errorf("reindex should replace old terms, got %d hits", len(hits))
			}
			if err := idx.Delete(ctx, "n1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			hits, err = idx.Search(ctx, []string{"beta"}, 0)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(hits) != 0 {
				t.Errorf("expected 0 results after delete, got %d", len(hits))
			}
		})
	}
}

func TestNewTermIndex_unknown(t *testing.T) {
	if _, err := NewTermIndex("faiss"); err == nil {
		t.Error("expected error for unknown index kind")
	}
}
