package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/chunker"
	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/generation"
	"github.com/hyperjump/tutor/internal/ingest"
	"github.com/hyperjump/tutor/internal/keyword"
	"github.com/hyperjump/tutor/internal/retrieval"
	"github.com/hyperjump/tutor/internal/retry"
	"github.com/hyperjump/tutor/internal/server"
	"github.com/hyperjump/tutor/internal/tokenizer"
	"github.com/hyperjump/tutor/internal/tutor"
	"github.com/hyperjump/tutor/internal/vector"
)

// Components are the services built once at startup and shared by every request.
// Embedder, Index, Collection and Ingester are nil under the keyword strategy.
type Components struct {
	Strategy     string
	Embedder     embedding.Embedder
	Index        vector.Index
	Collection   *vector.Collection
	Ingester     *ingest.Ingester
	Retriever    retrieval.Retriever
	Generator    generation.Generator
	Chat         *tutor.Chat
	Translator   *tutor.Translator
	Personalizer *tutor.Personalizer
}

// Close releases the embedder and index.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

// ServerDeps returns the dependencies the HTTP server needs.
func (c *Components) ServerDeps() server.Deps {
	deps := server.Deps{
		Chat:         c.Chat,
		Translator:   c.Translator,
		Personalizer: c.Personalizer,
		Retriever:    c.Retriever,
		Collection:   c.Collection,
	}
	// A nil *ingest.Ingester must stay a nil interface.
	if c.Ingester != nil {
		deps.Ingester = c.Ingester
	}
	return deps
}

func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		InitialWait: cfg.Retry.InitialWait,
		MaxWait:     cfg.Retry.MaxWait,
		Jitter:      true,
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	c := &Components{Strategy: cfg.RetrievalBackend()}
	policy := retryPolicy(cfg)

	gen, err := generation.NewOpenAIGenerator(generation.OpenAIConfig{
		APIKey:  cfg.Generation.APIKey,
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
		Retry:   policy,
		Pacer:   retry.NewPacer(cfg.Generation.RequestsPerSecond, cfg.Generation.Burst),
	}, generation.WithLogger(logger))
	switch {
	case err == nil:
		c.Generator = gen
	case errors.Is(err, apperr.ErrNotConfigured):
		logger.Warn("generation provider not configured; chat, translate and personalize will answer 503")
		c.Generator = generation.Unconfigured{What: "OPENAI_API_KEY"}
	default:
		return nil, err
	}

	deps := retrieval.Deps{Options: []retrieval.Option{retrieval.WithLogger(logger)}}
	switch c.Strategy {
	case retrieval.StrategyVector:
		if err := c.initVector(cfg, logger, policy); err != nil {
			c.Close()
			return nil, err
		}
		deps.Embedder = c.Embedder
		deps.Collection = c.Collection
	case retrieval.StrategyKeyword:
		if cfg.Retrieval.CorpusPath != "" {
			corpus, err := keyword.LoadCorpus(cfg.Retrieval.CorpusPath)
			if err != nil {
				return nil, err
			}
			deps.Corpus = corpus
		}
	}
	c.Retriever, err = retrieval.New(c.Strategy, deps)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Chat = tutor.NewChat(c.Retriever, c.Generator, tutor.ChatConfig{
		Limit:           cfg.Retrieval.DefaultLimit,
		SourcesReturned: cfg.Retrieval.SourcesReturned,
	}, logger)
	c.Translator = tutor.NewTranslator(c.Generator, logger)
	c.Personalizer = tutor.NewPersonalizer(c.Generator, logger)

	logger.Info("components initialized",
		zap.String("retrieval", c.Strategy),
		zap.Bool("generation_configured", gen != nil),
		zap.Bool("debug", debug))
	return c, nil
}

func (c *Components) initVector(cfg *config.Config, logger *zap.Logger, policy retry.Policy) error {
	emb, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
		Retry:      policy,
		Pacer:      retry.NewPacer(cfg.Embedding.RequestsPerSecond, cfg.Embedding.Burst),
	}, embedding.WithLogger(logger))
	if err != nil {
		return err
	}
	c.Embedder = embedding.NewCachedEmbedder(emb, cfg.Embedding.CacheSize)

	backend := cfg.VectorBackend()
	c.Index, err = vector.New(backend, vector.Options{
		SQLitePath: cfg.Vector.SQLitePath,
		Qdrant:     vector.QdrantConfig{URL: cfg.Vector.Qdrant.URL, APIKey: cfg.Vector.Qdrant.APIKey},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.Collection = vector.NewCollection(c.Index, cfg.Vector.Collection, cfg.Embedding.Dimensions, vector.ParseMetric(cfg.Vector.Metric))

	tok, err := tokenizer.New(cfg.Chunking.Encoding)
	if err != nil {
		return err
	}
	ch, err := chunker.New(tok, cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}
	c.Ingester = ingest.New(ch, c.Embedder, c.Collection,
		ingest.WithLogger(logger),
		ingest.WithParallelism(cfg.Embedding.Parallelism),
		ingest.WithBatchSize(cfg.Ingest.BatchSize))

	logger.Info("vector index initialized",
		zap.String("backend", backend),
		zap.String("collection", cfg.Vector.Collection),
		zap.Int("dimensions", cfg.Embedding.Dimensions))
	return nil
}
