// Package store provides the per-namespace storage primitives: an HNSW
// vector store and a Bleve BM25 keyword index. Both are in-memory and are
// rebuilt from the source-of-truth log on startup.
package store

import (
	"context"
	"fmt"
)

// VectorStoreConfig configures an HNSW vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension. All vectors must match.
	Dimensions int

	// Metric is the distance metric: "cos" or "l2".
	Metric string

	// M is the maximum number of neighbors per graph node.
	M int

	// EfSearch is the search beam width.
	EfSearch int
}

// VectorResult is one hit from a vector search.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32

	// Seq is the insertion sequence of the vector, used for deterministic
	// ordering when scores tie.
	Seq uint64
}

// BM25Result is one hit from a keyword search.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// VectorStore indexes embedding vectors for approximate nearest neighbor
// search.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	Contains(id string) bool
	Count() int
	Close() error
}

// BM25Index indexes document text for keyword search.
type BM25Index interface {
	Index(ctx context.Context, docs []*IndexDoc) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
	Close() error
}

// IndexDoc is the unit handed to the BM25 index.
type IndexDoc struct {
	ID      string
	Content string
}

// ErrDimensionMismatch is returned when a vector's dimension does not match
// the store's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
