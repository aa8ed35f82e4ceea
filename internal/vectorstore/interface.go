// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. The similarity metric is cosine;
// higher scores mean more similar, which the dedup thresholds rely on.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector storage operations.
//
// claimbank manages a single entity type with bounded cardinality, so the
// interface covers one collection: add, fetch by ID, similarity search with
// exact-match metadata filtering, and delete. Implementations must be safe
// for concurrent use.
type Store interface {
	// Add stores documents, embedding any document whose Embedding is unset.
	// Adding an existing ID replaces the stored document.
	Add(ctx context.Context, docs []Document) error

	// Get fetches a document by ID. Returns ErrDocumentNotFound if absent.
	Get(ctx context.Context, id string) (*Document, error)

	// Search performs similarity search, returning up to k results ordered
	// by score (highest first). The where map applies exact-match filters on
	// document metadata before ranking; only documents matching ALL entries
	// are considered. A k larger than the collection is capped, and a filter
	// matching nothing yields an empty result, not an error.
	Search(ctx context.Context, query string, k int, where map[string]string) ([]SearchResult, error)

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}
