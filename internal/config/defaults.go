package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	// Overlap 0 is a legitimate setting, so it is only filled in together with size.
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 500
		if cfg.Chunking.Overlap == 0 {
			cfg.Chunking.Overlap = 50
		}
	}
	if cfg.Chunking.Encoding == "" {
		cfg.Chunking.Encoding = "cl100k_base"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.Parallelism == 0 {
		cfg.Embedding.Parallelism = 4
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = cfg.Embedding.APIKey
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = cfg.Embedding.BaseURL
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gpt-4o-mini"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 90 * time.Second
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = BackendAuto
	}
	if cfg.Vector.Collection == "" {
		cfg.Vector.Collection = "physical_ai_textbook"
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = "cosine"
	}
	if cfg.Vector.SQLitePath == "" {
		cfg.Vector.SQLitePath = "./data/vectors.db"
	}
	if cfg.Retrieval.Backend == "" {
		cfg.Retrieval.Backend = BackendAuto
	}
	if cfg.Retrieval.DefaultLimit == 0 {
		cfg.Retrieval.DefaultLimit = 5
	}
	if cfg.Retrieval.MaxLimit == 0 {
		cfg.Retrieval.MaxLimit = 50
	}
	if cfg.Retrieval.SourcesReturned == 0 {
		cfg.Retrieval.SourcesReturned = 3
	}
	if cfg.Ingest.DocsDir == "" {
		cfg.Ingest.DocsDir = "./docs"
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".md", ".mdx"}
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 64
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialWait == 0 {
		cfg.Retry.InitialWait = 500 * time.Millisecond
	}
	if cfg.Retry.MaxWait == 0 {
		cfg.Retry.MaxWait = 10 * time.Second
	}
}
