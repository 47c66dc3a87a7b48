package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: LEGALRAG_RETRIEVE__TOP_K=8 sets retrieve.top_k.
const EnvPrefix = "LEGALRAG_"

// Config holds all configuration for the retrieval core. It is loaded once
// and passed by value into constructors.
type Config struct {
	Index     IndexConfig     `yaml:"index" koanf:"index"`
	Embedding EmbeddingConfig `yaml:"embedding" koanf:"embedding"`
	Retrieve  RetrieveConfig  `yaml:"retrieve" koanf:"retrieve"`
	Store     StoreConfig     `yaml:"store" koanf:"store"`
	Logging   LoggingConfig   `yaml:"logging" koanf:"logging"`
}

// IndexConfig holds document discovery and chunking configuration.
type IndexConfig struct {
	Includes      []string `yaml:"includes" koanf:"includes"`
	Excludes      []string `yaml:"excludes" koanf:"excludes"`
	Strategy      string   `yaml:"strategy" koanf:"strategy"`           // "window" or "paragraph"
	ChunkSize     int      `yaml:"chunk_size" koanf:"chunk_size"`       // window length in characters
	ChunkOverlap  int      `yaml:"chunk_overlap" koanf:"chunk_overlap"` // characters shared by adjacent chunks
	MinChunkChars int      `yaml:"min_chunk_chars" koanf:"min_chunk_chars"`
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Provider     string `yaml:"provider" koanf:"provider"` // "openai", "ollama", "hash"
	Model        string `yaml:"model" koanf:"model"`
	BaseURL      string `yaml:"base_url" koanf:"base_url"`
	APIKeyEnv    string `yaml:"api_key_env" koanf:"api_key_env"`
	Dimension    int    `yaml:"dimension" koanf:"dimension"`
	BatchSize    int    `yaml:"batch_size" koanf:"batch_size"`
	Concurrency  int    `yaml:"concurrency" koanf:"concurrency"`
	TimeoutSecs  int    `yaml:"timeout_secs" koanf:"timeout_secs"`
	CacheSize    int    `yaml:"cache_size" koanf:"cache_size"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" koanf:"cache_ttl_secs"`

	RequestsPerSecond float64 `yaml:"requests_per_second" koanf:"requests_per_second"` // 0 = unlimited
	Burst             int     `yaml:"burst" koanf:"burst"`
}

// RetrieveConfig holds retrieval and re-ranking configuration.
type RetrieveConfig struct {
	TopK                int     `yaml:"top_k" koanf:"top_k"`
	MaxPerDocument      int     `yaml:"max_per_document" koanf:"max_per_document"` // 0 = no cap
	RecencyBoost        float64 `yaml:"recency_boost" koanf:"recency_boost"`       // 0 = disabled
	MinScoreThreshold   float64 `yaml:"min_score_threshold" koanf:"min_score_threshold"`
	MMRLambda           float64 `yaml:"mmr_lambda" koanf:"mmr_lambda"` // 0 = disabled
	CandidateMultiplier int     `yaml:"candidate_multiplier" koanf:"candidate_multiplier"`
}

// StoreConfig locates the vector store. A relative path is resolved against the root directory.
type StoreConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" koanf:"level"`
}

// Providers accepted in embedding.provider.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Index: IndexConfig{
			Includes:      []string{"**/*.txt", "**/*.md"},
			Excludes:      []string{"**/.legalrag/**", "**/.git/**"},
			Strategy:      "paragraph",
			ChunkSize:     1000,
			ChunkOverlap:  200,
			MinChunkChars: 10,
		},
		Embedding: EmbeddingConfig{
			Provider:     ProviderOllama,
			Model:        "nomic-embed-text",
			BaseURL:      "http://localhost:11434/v1",
			APIKeyEnv:    "OPENAI_API_KEY",
			Dimension:    768,
			BatchSize:    50,
			Concurrency:  4,
			TimeoutSecs:  60,
			CacheSize:    256,
			CacheTTLSecs: 600,
			Burst:        1,
		},
		Retrieve: RetrieveConfig{
			TopK:                5,
			MaxPerDocument:      0,
			RecencyBoost:        0,
			MinScoreThreshold:   0,
			MMRLambda:           0,
			CandidateMultiplier: 3,
		},
		Store: StoreConfig{
			Path: filepath.Join(".legalrag", "index.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file and overlays LEGALRAG_ environment
// variables. A missing file yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps LEGALRAG_RETRIEVE__TOP_K to retrieve.top_k.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// LoadFromDir loads configuration from a directory (looks for legalrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "legalrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".legalrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return Load("")
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap)
	}
	switch c.Index.Strategy {
	case "window", "paragraph":
	default:
		return fmt.Errorf("invalid index.strategy %q: must be one of window, paragraph", c.Index.Strategy)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderHash:
	default:
		return fmt.Errorf("invalid embedding.provider %q: must be one of openai, ollama, hash", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Concurrency <= 0 {
		return fmt.Errorf("embedding.concurrency must be positive, got %d", c.Embedding.Concurrency)
	}
	if c.Embedding.RequestsPerSecond < 0 {
		return fmt.Errorf("embedding.requests_per_second must be non-negative, got %g", c.Embedding.RequestsPerSecond)
	}
	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK)
	}
	if c.Retrieve.MaxPerDocument < 0 {
		return fmt.Errorf("retrieve.max_per_document must be non-negative")
	}
	if c.Retrieve.MMRLambda < 0 || c.Retrieve.MMRLambda > 1 {
		return fmt.Errorf("retrieve.mmr_lambda must be in [0, 1], got %g", c.Retrieve.MMRLambda)
	}
	if c.Retrieve.CandidateMultiplier < 1 {
		return fmt.Errorf("retrieve.candidate_multiplier must be at least 1")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// StorePath resolves the store path against the root directory.
func (c *Config) StorePath(dir string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(dir, c.Store.Path)
}

// EnsureStoreDir ensures the directory holding the store file exists.
func (c *Config) EnsureStoreDir(dir string) error {
	return os.MkdirAll(filepath.Dir(c.StorePath(dir)), 0755)
}
