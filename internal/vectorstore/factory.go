package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider identifiers accepted by New.
const (
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

// Config selects and configures a vector store backend.
type Config struct {
	Provider string
	Chromem  ChromemConfig
	Qdrant   QdrantConfig
}

// New creates a Store for the configured provider.
func New(config Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch config.Provider {
	case ProviderChromem, "":
		return NewChromemStore(config.Chromem, embedder, logger)
	case ProviderQdrant:
		return NewQdrantStore(config.Qdrant, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, config.Provider)
	}
}
