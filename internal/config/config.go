// Package config provides configuration loading and structs for the tsunagu server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool                       `yaml:"debug"`
	Server     ServerConfig               `yaml:"server"`
	Storage    StorageConfig              `yaml:"storage"`
	Analysis   AnalysisConfig             `yaml:"analysis"`
	Keyword    KeywordConfig              `yaml:"keyword"`
	Embedding  EmbeddingConfig            `yaml:"embedding"`
	Vector     VectorConfig               `yaml:"vector"`
	Workspaces map[string]WorkspaceConfig `yaml:"workspaces" validate:"required,min=1,dive"`
	Watch      WatchConfig                `yaml:"watch"`
	Metrics    MetricsConfig              `yaml:"metrics"`
	Search     SearchConfig               `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// StorageConfig selects and configures the persisted graph store.
type StorageConfig struct {
	Backend      string      `yaml:"backend" validate:"oneof=sqlite neo4j"`
	DatabasePath string      `yaml:"database_path"`
	Neo4j        Neo4jConfig `yaml:"neo4j"`
}

// Neo4jConfig holds Neo4j connection settings. The password is read from the
// environment variable named by PasswordEnv and never stored in the file.
type Neo4jConfig struct {
	URI         string `yaml:"uri"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	Database    string `yaml:"database"`
}

// AnalysisConfig holds the relationship extraction policy.
type AnalysisConfig struct {
	ExtractionMode string `yaml:"extraction_mode" validate:"oneof=keyword embedding"`
	// SimilarityThreshold is nil when unset; an explicit 0 keeps every scored pair.
	SimilarityThreshold     *float64 `yaml:"similarity_threshold" validate:"omitempty,gte=0,lte=1"`
	MaxRelationshipsPerNote int      `yaml:"max_relationships_per_note" validate:"min=1"`
	MaxCandidatesPerNote    int      `yaml:"max_candidates_per_note" validate:"min=1"`
	Workers                 int      `yaml:"workers" validate:"min=1"`
}

// Threshold returns the similarity threshold, or the default when unset.
func (a AnalysisConfig) Threshold() float64 {
	if a.SimilarityThreshold == nil {
		return DefaultSimilarityThreshold
	}
	return *a.SimilarityThreshold
}

// Float64 returns a pointer to v, for optional numeric settings.
func Float64(v float64) *float64 {
	return &v
}

// KeywordConfig holds keyword-mode extraction settings.
type KeywordConfig struct {
	Weighting       string  `yaml:"weighting" validate:"oneof=tfidf frequency"`
	MinTermWeight   float64 `yaml:"min_term_weight" validate:"gte=0,lte=1"`
	MaxTermsPerNote int     `yaml:"max_terms_per_note" validate:"min=1"`
	EvidenceLimit   int     `yaml:"evidence_limit" validate:"min=1"`
	Index           string  `yaml:"index" validate:"oneof=memory bleve"`
}

// EmbeddingConfig holds embedding provider settings. CredentialEnv names the
// environment variable that carries the API key.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider" validate:"oneof=openai onnx hash"`
	Model         string        `yaml:"model"`
	Dimensions    int           `yaml:"dimensions" validate:"min=1"`
	BaseURL       string        `yaml:"base_url"`
	CredentialEnv string        `yaml:"credential_env"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheSize     int           `yaml:"cache_size" validate:"min=0"`
	ModelPath     string        `yaml:"model_path"`
	MaxTokens     int           `yaml:"max_tokens"`
}

// VectorConfig selects the nearest-neighbor index used in embedding mode.
type VectorConfig struct {
	IndexType string `yaml:"index_type" validate:"oneof=memory lsh"`
	LSHTables int    `yaml:"lsh_tables" validate:"min=1"`
	LSHBits   int    `yaml:"lsh_bits" validate:"min=1,max=62"`
}

// WorkspaceConfig points a workspace at its notes directory.
type WorkspaceConfig struct {
	NotesDir string   `yaml:"notes_dir" validate:"required"`
	Include  []string `yaml:"include"`
}

// WatchConfig enables change-triggered incremental analysis.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// SearchConfig weights the keyword and semantic scores of workspace search. The
// semantic weight only applies in embedding mode.
type SearchConfig struct {
	KeywordWeight  float64 `yaml:"keyword_weight" validate:"gte=0,lte=1"`
	SemanticWeight float64 `yaml:"semantic_weight" validate:"gte=0,lte=1"`
	DefaultLimit   int     `yaml:"default_limit" validate:"min=1"`
}

// MetricsConfig enables the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

var validate = validator.New()

// Load reads and parses the config file at path, expands paths, applies defaults and
// validates the result. A .env file next to the config is loaded into the environment
// if present, so credential references can resolve.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for id, ws := range cfg.Workspaces {
		ws.NotesDir = expandPath(ws.NotesDir, configDir)
		cfg.Workspaces[id] = ws
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Backend == "sqlite" && c.Storage.DatabasePath == "" {
		return errors.New("invalid config: storage.database_path is required for sqlite")
	}
	if c.Storage.Backend == "neo4j" && c.Storage.Neo4j.URI == "" {
		return errors.New("invalid config: storage.neo4j.uri is required for neo4j")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
