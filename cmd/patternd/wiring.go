package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/config"
	"github.com/fairwayops/patternd/internal/embeddings"
	"github.com/fairwayops/patternd/internal/pattern"
	"github.com/fairwayops/patternd/internal/store"
	"github.com/fairwayops/patternd/internal/vectorstore"
)

// buildEngine creates the embedding provider, vector store, and pattern
// engine. The returned closer releases both the store and the provider.
func buildEngine(cfg *config.Config, st store.Store, logger *zap.Logger) (*pattern.Engine, func(), error) {
	embedder, err := embeddings.NewProvider(embeddings.Config{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		APIKey:   cfg.Embeddings.APIKey,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	vectors, err := vectorstore.New(vectorstore.Config{
		Provider: cfg.VectorStore.Provider,
		Chromem: vectorstore.ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			Collection: cfg.VectorStore.Chromem.Collection,
			VectorSize: cfg.VectorStore.Chromem.VectorSize,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			Collection: cfg.VectorStore.Qdrant.Collection,
			VectorSize: cfg.VectorStore.Qdrant.VectorSize,
		},
	}, embedder, logger.Named("vectors"))
	if err != nil {
		_ = embedder.Close()
		return nil, nil, fmt.Errorf("creating vector store: %w", err)
	}

	engine := pattern.NewEngine(st, vectors, pattern.Config{
		DedupThreshold:    cfg.Engine.DedupThreshold,
		MatchFloor:        cfg.Engine.MatchFloor,
		AutoThreshold:     cfg.Engine.AutoThreshold,
		AutoMinExecutions: cfg.Engine.AutoMinExecutions,
	}, logger.Named("engine"))

	closer := func() {
		_ = vectors.Close()
		_ = embedder.Close()
	}
	return engine, closer, nil
}
