// Package vectorstore provides vector storage for pattern triggers.
//
// Two backends are supported: embedded chromem-go (default, persists to disk,
// no external service) and Qdrant over gRPC for multi-node deployments. Both
// store one collection of trigger embeddings keyed by pattern ID.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when the collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates a connection failure to the backend.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names:
// lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Document is a trigger text to be stored with its metadata.
type Document struct {
	// ID is the unique identifier, by convention the pattern ID plus an
	// example suffix for additional trigger examples.
	ID string

	// Content is the trigger text that gets embedded.
	Content string

	// Metadata carries filterable key-value pairs (pattern_id, type, active).
	Metadata map[string]string
}

// SearchResult is a single similarity search hit.
type SearchResult struct {
	ID       string
	Content  string
	Score    float32 // cosine similarity, higher is more similar
	Metadata map[string]string
}

// CollectionInfo describes the backing collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"point_count"`
	VectorSize int    `json:"vector_size"`
}

// Store is the interface for vector storage operations.
//
// Implementations manage a single collection configured at construction.
type Store interface {
	// AddDocuments embeds and stores documents. Returns the stored IDs.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search returns up to k results similar to query, most similar first.
	// Filters match document metadata exactly; nil means no filtering.
	Search(ctx context.Context, query string, k int, filters map[string]string) ([]SearchResult, error)

	// DeleteDocuments removes documents by ID.
	DeleteDocuments(ctx context.Context, ids []string) error

	// Info returns metadata about the collection.
	Info(ctx context.Context) (*CollectionInfo, error)

	// Close releases backend resources.
	Close() error
}
