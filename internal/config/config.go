// Package config provides configuration loading and structs for the tutor service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Retrieval strategies.
const (
	BackendAuto    = "auto"
	BackendVector  = "vector"
	BackendKeyword = "keyword"
)

// Vector index backends.
const (
	VectorQdrant = "qdrant"
	VectorSQLite = "sqlite"
	VectorMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Vector     VectorConfig     `yaml:"vector"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Retry      RetryConfig      `yaml:"retry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ChunkingConfig holds token window settings.
type ChunkingConfig struct {
	Size     int    `yaml:"size"`
	Overlap  int    `yaml:"overlap"`
	Encoding string `yaml:"encoding"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	Dimensions        int           `yaml:"dimensions"`
	CacheSize         int           `yaml:"cache_size"`
	Parallelism       int           `yaml:"parallelism"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

// GenerationConfig holds the chat completion provider settings.
// APIKey and BaseURL fall back to the embedding ones when unset.
type GenerationConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

// VectorConfig selects and configures the vector index.
type VectorConfig struct {
	Backend    string       `yaml:"backend"`
	Collection string       `yaml:"collection"`
	Metric     string       `yaml:"metric"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
	SQLitePath string       `yaml:"sqlite_path"`
}

// QdrantConfig holds the remote vector store connection.
type QdrantConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// RetrievalConfig holds query-side settings.
type RetrievalConfig struct {
	Backend         string `yaml:"backend"`
	DefaultLimit    int    `yaml:"default_limit"`
	MaxLimit        int    `yaml:"max_limit"`
	SourcesReturned int    `yaml:"sources_returned"`
	// CorpusPath optionally replaces the embedded keyword corpus.
	CorpusPath string `yaml:"corpus_path"`
}

// IngestConfig holds batch ingestion and watch settings.
type IngestConfig struct {
	DocsDir    string   `yaml:"docs_dir"`
	Extensions []string `yaml:"extensions"`
	BatchSize  int      `yaml:"batch_size"`
	Watch      bool     `yaml:"watch"`
}

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
}

// Load reads the config file at path, overlays a sibling .env file and the process
// environment, applies defaults, expands paths and validates the result.
// An empty path yields a configuration built from defaults and the environment only.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg, os.LookupEnv)
	ApplyDefaults(&cfg)

	cfg.Vector.SQLitePath = expandPath(cfg.Vector.SQLitePath, configDir)
	cfg.Ingest.DocsDir = expandPath(cfg.Ingest.DocsDir, configDir)
	if cfg.Retrieval.CorpusPath != "" {
		cfg.Retrieval.CorpusPath = expandPath(cfg.Retrieval.CorpusPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
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

// loadDotEnv exports variables from a .env file without overriding ones already set.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays well-known environment variables onto cfg. Environment wins over file values.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	set(&cfg.Embedding.BaseURL, "OPENAI_BASE_URL")
	set(&cfg.Embedding.Model, "OPENAI_EMBEDDING_MODEL")
	set(&cfg.Generation.Model, "OPENAI_CHAT_MODEL")
	set(&cfg.Vector.Qdrant.URL, "QDRANT_URL")
	set(&cfg.Vector.Qdrant.APIKey, "QDRANT_API_KEY")
	set(&cfg.Vector.Collection, "QDRANT_COLLECTION_NAME")
	set(&cfg.Ingest.DocsDir, "DOCS_DIR")
	if v, ok := lookup("TUTOR_DEBUG"); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

// RetrievalBackend resolves "auto" into the concrete retrieval strategy:
// vector when an embedding API key is configured, keyword otherwise.
func (c *Config) RetrievalBackend() string {
	if c.Retrieval.Backend != BackendAuto {
		return c.Retrieval.Backend
	}
	if c.Embedding.APIKey != "" {
		return BackendVector
	}
	return BackendKeyword
}

// VectorBackend resolves "auto" into the concrete vector index: qdrant when a URL is
// configured, sqlite otherwise.
func (c *Config) VectorBackend() string {
	if c.Vector.Backend != BackendAuto {
		return c.Vector.Backend
	}
	if c.Vector.Qdrant.URL != "" {
		return VectorQdrant
	}
	return VectorSQLite
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		if abs, err := filepath.Abs(filepath.Join(configDir, path)); err == nil {
			return abs
		}
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
