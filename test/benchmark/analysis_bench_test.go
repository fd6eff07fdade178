package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/tsunagu/internal/analysis"
	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/graph"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/notes"
	"github.com/hyperjump/tsunagu/internal/scoring"
	"github.com/hyperjump/tsunagu/internal/storage"
)

var vocabulary = []string{
	"raft", "paxos", "quorum", "leader", "replication", "snapshot", "compaction", "gossip",
	"tomato", "basil", "garlic", "oregano", "simmer", "skillet", "olive", "parmesan",
	"nebula", "pulsar", "quasar", "telescope", "galaxy", "redshift", "comet", "orbit",
}

func syntheticNotes(n int) []*models.Note {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*models.Note, n)
	for i := range out {
		body := ""
		for j := 0; j < 12; j++ {
			body += vocabulary[(i*7+j*3)%len(vocabulary)] + " "
		}
		out[i] = &models.Note{ID: fmt.Sprintf("note-%04d", i), Title: fmt.Sprintf("n%d", i), Body: body, ModifiedAt: now}
	}
	return out
}

func BenchmarkFullKeywordAnalysis(b *testing.B) {
	cfg := &config.Config{}
	cfg.Analysis.ExtractionMode = "keyword"
	cfg.Analysis.SimilarityThreshold = config.Float64(0.3)
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStore(filepath.Join(b.TempDir(), "graph.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	repo := notes.NewMemoryRepository(syntheticNotes(300)...)
	orch, err := analysis.New(cfg, store, map[string]notes.Repository{"bench": repo}, nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := orch.TriggerAnalysis(ctx, "bench", models.ModeFull); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPlan(b *testing.B) {
	scored := make([]models.ScoredPair, 0, 5000)
	scope := make([]string, 500)
	for i := range scope {
		scope[i] = fmt.Sprintf("n%04d", i)
	}
	for i := 0; i < 500; i++ {
		for j := 1; j <= 10; j++ {
			pair, ok := models.NewCandidatePair(scope[i], scope[(i+j*13)%500], models.CandidateKeywordOverlap)
			if !ok {
				continue
			}
			scored = append(scored, models.ScoredPair{CandidatePair: pair, Strength: float64((i*j)%100) / 100})
		}
	}
	req := &graph.CommitRequest{Workspace: "bench", RunID: "r", Method: models.MethodKeyword, Scored: scored, Scope: scope}
	policy := graph.Policy{Threshold: 0.4, MaxPerNote: 5}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = graph.Plan(req, nil, policy)
	}
}

func BenchmarkKeywordScore(b *testing.B) {
	s, err := scoring.New(models.MethodKeyword, scoring.Options{EvidenceLimit: 10})
	if err != nil {
		b.Fatal(err)
	}
	a := &models.FeatureRepresentation{NoteID: "a", Method: models.MethodKeyword, Terms: map[string]float64{}}
	c := &models.FeatureRepresentation{NoteID: "c", Method: models.MethodKeyword, Terms: map[string]float64{}}
	for i := 0; i < 50; i++ {
		a.Terms[fmt.Sprintf("t%03d", i)] = 1 / float64(i+1)
		c.Terms[fmt.Sprintf("t%03d", i+25)] = 1 / float64(i+2)
	}
	pair, _ := models.NewCandidatePair("a", "c", models.CandidateKeywordOverlap)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Score(pair, a, c)
	}
}

func BenchmarkHashProvider_Embed(b *testing.B) {
	p := embedding.NewHashProvider(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.Embed(ctx, "raft consensus leader election log replication quorum")
	}
}
