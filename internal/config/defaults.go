package config

import "time"

// DefaultWorkspace is the workspace used when none is configured or named.
const DefaultWorkspace = "default"

// DefaultSimilarityThreshold applies when similarity_threshold is not set.
const DefaultSimilarityThreshold = 0.6

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/tsunagu/data/graph.db"
	}
	if cfg.Storage.Neo4j.Username == "" {
		cfg.Storage.Neo4j.Username = "neo4j"
	}
	if cfg.Storage.Neo4j.PasswordEnv == "" {
		cfg.Storage.Neo4j.PasswordEnv = "NEO4J_PASSWORD"
	}
	ApplyAnalysisDefaults(&cfg.Analysis)
	ApplyKeywordDefaults(&cfg.Keyword)
	ApplyEmbeddingDefaults(&cfg.Embedding)
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Vector.LSHTables == 0 {
		cfg.Vector.LSHTables = 8
	}
	if cfg.Vector.LSHBits == 0 {
		cfg.Vector.LSHBits = 12
	}
	if len(cfg.Workspaces) == 0 {
		cfg.Workspaces = map[string]WorkspaceConfig{
			DefaultWorkspace: {NotesDir: "/usr/local/var/tsunagu/notes"},
		}
	}
	for id, ws := range cfg.Workspaces {
		if len(ws.Include) == 0 {
			ws.Include = []string{"**/*.md", "**/*.txt"}
		}
		cfg.Workspaces[id] = ws
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
	ApplySearchDefaults(&cfg.Search)
}

// ApplySearchDefaults fills unset search weights and limit. Weights are only
// defaulted when both are zero.
func ApplySearchDefaults(s *SearchConfig) {
	if s.KeywordWeight == 0 && s.SemanticWeight == 0 {
		s.KeywordWeight = 0.4
		s.SemanticWeight = 0.6
	}
	if s.DefaultLimit == 0 {
		s.DefaultLimit = 10
	}
}

// ApplyAnalysisDefaults fills unset analysis policy values.
func ApplyAnalysisDefaults(a *AnalysisConfig) {
	if a.ExtractionMode == "" {
		a.ExtractionMode = "keyword"
	}
	if a.SimilarityThreshold == nil {
		a.SimilarityThreshold = Float64(DefaultSimilarityThreshold)
	}
	if a.MaxRelationshipsPerNote == 0 {
		a.MaxRelationshipsPerNote = 5
	}
	if a.MaxCandidatesPerNote == 0 {
		a.MaxCandidatesPerNote = 20
	}
	if a.Workers == 0 {
		a.Workers = 4
	}
}

// ApplyKeywordDefaults fills unset keyword extraction values.
func ApplyKeywordDefaults(k *KeywordConfig) {
	if k.Weighting == "" {
		k.Weighting = "tfidf"
	}
	if k.MaxTermsPerNote == 0 {
		k.MaxTermsPerNote = 50
	}
	if k.EvidenceLimit == 0 {
		k.EvidenceLimit = 10
	}
	if k.Index == "" {
		k.Index = "memory"
	}
}

// ApplyEmbeddingDefaults fills unset embedding provider values.
func ApplyEmbeddingDefaults(e *EmbeddingConfig) {
	if e.Provider == "" {
		e.Provider = "openai"
	}
	if e.Model == "" {
		switch e.Provider {
		case "openai":
			e.Model = "text-embedding-3-small"
		case "onnx":
			e.Model = "all-MiniLM-L6-v2"
		default:
			e.Model = "fnv-hash"
		}
	}
	if e.Dimensions == 0 {
		switch e.Provider {
		case "openai":
			e.Dimensions = 1536
		default:
			e.Dimensions = 384
		}
	}
	if e.CredentialEnv == "" && e.Provider == "openai" {
		e.CredentialEnv = "OPENAI_API_KEY"
	}
	if e.Timeout == 0 {
		e.Timeout = 15 * time.Second
	}
	if e.CacheSize == 0 {
		e.CacheSize = 10000
	}
	if e.ModelPath == "" {
		e.ModelPath = "/usr/local/var/tsunagu/data/models/all-MiniLM-L6-v2.onnx"
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 256
	}
}
