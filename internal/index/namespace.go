// Package index maintains the paired vector and keyword indexes for each
// namespace, along with the document metadata needed to hydrate and filter
// search results. Both indexes mutate under one lock so queries never see a
// document in one index but not the other.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yoniassia/memclawz/internal/errors"
	"github.com/yoniassia/memclawz/internal/store"
)

// Document is one indexed memory chunk with its embedding.
type Document struct {
	ID          string
	Namespace   string
	Text        string
	Vector      []float32
	SourcePath  string
	StartLine   int
	EndLine     int
	Heading     string
	ContentHash string
	Shared      bool
	UpdatedAt   time.Time
}

// VectorHit is a vector search hit hydrated with its document.
type VectorHit struct {
	Doc   *Document
	Score float64
	Seq   uint64
}

// KeywordHit is a keyword search hit hydrated with its document.
type KeywordHit struct {
	Doc          *Document
	Score        float64
	MatchedTerms []string
}

// Stats summarizes one namespace index.
type Stats struct {
	Namespace  string    `json:"namespace"`
	DocCount   int       `json:"doc_count"`
	Dimensions int       `json:"dimensions"`
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Config holds HNSW construction parameters for new namespace indexes.
type Config struct {
	M        int
	EfSearch int
}

// NamespaceIndex holds the vector store, keyword index, and document table
// for one namespace. The embedding dimension is fixed by the first document
// indexed; later documents must match it.
type NamespaceIndex struct {
	namespace string
	cfg       Config
	logger    *slog.Logger

	mu         sync.RWMutex
	vectors    *store.HNSWStore
	keywords   *store.BleveBM25Index
	docs       map[string]*Document
	hashes     map[string]string // id -> content hash, for idempotent upserts
	seqs       map[string]uint64 // id -> insertion sequence, for tie-breaking
	nextSeq    uint64
	generation uint64
	updatedAt  time.Time
	closed     bool
}

// NewNamespaceIndex creates an empty index for a namespace.
func NewNamespaceIndex(namespace string, cfg Config, logger *slog.Logger) (*NamespaceIndex, error) {
	keywords, err := store.NewBleveBM25Index()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &NamespaceIndex{
		namespace: namespace,
		cfg:       cfg,
		logger:    logger.With(slog.String("namespace", namespace)),
		keywords:  keywords,
		docs:      make(map[string]*Document),
		hashes:    make(map[string]string),
		seqs:      make(map[string]uint64),
	}, nil
}

// Namespace returns the namespace name.
func (n *NamespaceIndex) Namespace() string {
	return n.namespace
}

// Dimensions returns the established embedding dimension, or 0 if no
// document has been indexed yet.
func (n *NamespaceIndex) Dimensions() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.vectors == nil {
		return 0
	}
	return n.vectors.Dimensions()
}

// Upsert indexes documents, replacing any existing documents with the same
// IDs. A document whose ID and content hash both match the stored state is
// skipped entirely. Either all documents in the batch are applied or none.
func (n *NamespaceIndex) Upsert(ctx context.Context, docs []*Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	for _, doc := range docs {
		if doc.ID == "" {
			return 0, errors.ValidationError("document ID is required", nil)
		}
		if len(doc.Vector) == 0 {
			return 0, errors.ValidationError(
				fmt.Sprintf("document %s has no embedding", doc.ID), nil)
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return 0, errors.New(errors.ErrCodeInternal, "index is closed", nil)
	}

	// The first vector fixes the dimension for the namespace.
	if n.vectors == nil {
		vs, err := store.NewHNSWStore(store.VectorStoreConfig{
			Dimensions: len(docs[0].Vector),
			Metric:     "cos",
			M:          n.cfg.M,
			EfSearch:   n.cfg.EfSearch,
		})
		if err != nil {
			return 0, errors.Wrap(errors.ErrCodeInternal, err)
		}
		n.vectors = vs
	}
	dims := n.vectors.Dimensions()

	// Validate the whole batch before touching either index.
	changed := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Vector) != dims {
			return 0, errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("document %s has %d dimensions, index has %d",
					doc.ID, len(doc.Vector), dims), nil)
		}
		if prev, ok := n.hashes[doc.ID]; ok && prev == doc.ContentHash && n.docs[doc.ID].Shared == doc.Shared {
			continue
		}
		changed = append(changed, doc)
	}
	if len(changed) == 0 {
		return 0, nil
	}

	ids := make([]string, len(changed))
	vectors := make([][]float32, len(changed))
	indexDocs := make([]*store.IndexDoc, len(changed))
	for i, doc := range changed {
		ids[i] = doc.ID
		vectors[i] = doc.Vector
		indexDocs[i] = &store.IndexDoc{ID: doc.ID, Content: doc.Text}
	}

	if err := n.vectors.Add(ctx, ids, vectors); err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err)
	}
	if err := n.keywords.Index(ctx, indexDocs); err != nil {
		// Roll the vectors back so the two indexes stay paired.
		if delErr := n.vectors.Delete(ctx, ids); delErr != nil {
			n.logger.Error("index_desync",
				slog.String("error", delErr.Error()))
			return 0, errors.New(errors.ErrCodeIndexDesync,
				"keyword index failed and vector rollback failed", err)
		}
		return 0, errors.Wrap(errors.ErrCodeInternal, err)
	}

	now := time.Now().UTC()
	for _, doc := range changed {
		stored := *doc
		stored.Namespace = n.namespace
		if stored.UpdatedAt.IsZero() {
			stored.UpdatedAt = now
		}
		n.docs[doc.ID] = &stored
		n.hashes[doc.ID] = doc.ContentHash
		n.seqs[doc.ID] = n.nextSeq
		n.nextSeq++
	}
	n.generation++
	n.updatedAt = now

	return len(changed), nil
}

// Delete removes documents by ID from both indexes. Unknown IDs are ignored.
// Returns the number of documents actually removed.
func (n *NamespaceIndex) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return 0, errors.New(errors.ErrCodeInternal, "index is closed", nil)
	}

	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := n.docs[id]; ok {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return 0, nil
	}

	if n.vectors != nil {
		if err := n.vectors.Delete(ctx, present); err != nil {
			return 0, errors.Wrap(errors.ErrCodeInternal, err)
		}
	}
	if err := n.keywords.Delete(ctx, present); err != nil {
		return 0, errors.New(errors.ErrCodeIndexDesync,
			"vector delete applied but keyword delete failed", err)
	}

	for _, id := range present {
		delete(n.docs, id)
		delete(n.hashes, id)
		delete(n.seqs, id)
	}
	n.generation++
	n.updatedAt = time.Now().UTC()

	return len(present), nil
}

// VectorSearch returns up to k nearest documents. With sharedOnly set,
// documents not marked shared are filtered out before the limit applies.
func (n *NamespaceIndex) VectorSearch(ctx context.Context, query []float32, k int, sharedOnly bool) ([]*VectorHit, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil, errors.New(errors.ErrCodeInternal, "index is closed", nil)
	}
	if n.vectors == nil {
		return []*VectorHit{}, nil
	}

	// Over-fetch so visibility filtering still fills k.
	fetch := k
	if sharedOnly {
		fetch = k * 4
	}

	results, err := n.vectors.Search(ctx, query, fetch)
	if err != nil {
		if _, ok := err.(store.ErrDimensionMismatch); ok {
			return nil, errors.Wrap(errors.ErrCodeDimensionMismatch, err)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	hits := make([]*VectorHit, 0, k)
	for _, r := range results {
		doc, ok := n.docs[r.ID]
		if !ok {
			continue
		}
		if sharedOnly && !doc.Shared {
			continue
		}
		hits = append(hits, &VectorHit{
			Doc:   doc,
			Score: float64(r.Score),
			Seq:   n.seqs[r.ID],
		})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

// KeywordSearch returns up to k BM25-matched documents, with the same
// visibility filtering as VectorSearch.
func (n *NamespaceIndex) KeywordSearch(ctx context.Context, query string, k int, sharedOnly bool) ([]*KeywordHit, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil, errors.New(errors.ErrCodeInternal, "index is closed", nil)
	}

	fetch := k
	if sharedOnly {
		fetch = k * 4
	}

	results, err := n.keywords.Search(ctx, query, fetch)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	hits := make([]*KeywordHit, 0, k)
	for _, r := range results {
		doc, ok := n.docs[r.DocID]
		if !ok {
			continue
		}
		if sharedOnly && !doc.Shared {
			continue
		}
		hits = append(hits, &KeywordHit{
			Doc:          doc,
			Score:        r.Score,
			MatchedTerms: r.MatchedTerms,
		})
		if len(hits) >= k {
			break
		}
	}
	return hits, nil
}

// Get returns the document with the given ID, or nil.
func (n *NamespaceIndex) Get(id string) *Document {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.docs[id]
}

// Count returns the number of indexed documents.
func (n *NamespaceIndex) Count() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.docs)
}

// Stats returns a snapshot of the index.
func (n *NamespaceIndex) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()

	dims := 0
	if n.vectors != nil {
		dims = n.vectors.Dimensions()
	}
	return Stats{
		Namespace:  n.namespace,
		DocCount:   len(n.docs),
		Dimensions: dims,
		Generation: n.generation,
		UpdatedAt:  n.updatedAt,
	}
}

// Close releases both underlying indexes.
func (n *NamespaceIndex) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true

	var firstErr error
	if n.vectors != nil {
		if err := n.vectors.Close(); err != nil {
			firstErr = err
		}
	}
	if err := n.keywords.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
