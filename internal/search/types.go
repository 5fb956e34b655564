// Package search implements hybrid retrieval: vector and keyword candidates
// are gathered per namespace, normalized independently, and fused with a
// weighted sum.
package search

import "time"

// Default engine parameters.
const (
	// DefaultVectorWeight is the fused-score weight of the vector signal.
	DefaultVectorWeight = 0.7

	// DefaultKeywordWeight is the fused-score weight of the keyword signal.
	DefaultKeywordWeight = 0.3

	// DefaultCandidateMultiplier sizes each candidate pool relative to the
	// requested result count.
	DefaultCandidateMultiplier = 4

	// DefaultTopK is the result count when the caller does not specify one.
	DefaultTopK = 10

	// MaxTopK caps the result count per query.
	MaxTopK = 100
)

// Options controls a single search.
type Options struct {
	// Namespace is the target namespace, or "all" for fan-out across
	// every namespace.
	Namespace string

	// Home is the caller's own namespace. Queries against any other
	// namespace only see shared documents.
	Home string

	// Vector is a precomputed query embedding. When set, the query text
	// is not embedded; it may be empty for a vector-only search.
	Vector []float32

	// SharedOnly restricts results to shared documents even in the
	// caller's own namespace.
	SharedOnly bool

	// TopK is the number of results to return.
	TopK int

	// VectorWeight and KeywordWeight override the engine defaults when
	// both are set. They must sum to 1.
	VectorWeight  float64
	KeywordWeight float64
}

// Result is one fused search hit.
type Result struct {
	ID           string   `json:"id"`
	Namespace    string   `json:"namespace"`
	Text         string   `json:"text"`
	SourcePath   string   `json:"source_path,omitempty"`
	StartLine    int      `json:"start_line,omitempty"`
	EndLine      int      `json:"end_line,omitempty"`
	Heading      string   `json:"heading,omitempty"`
	Shared       bool     `json:"shared"`
	Score        float64  `json:"fused_score"`
	VectorScore  float64  `json:"vector_score"`
	KeywordScore float64  `json:"keyword_score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// Response is the outcome of one search.
type Response struct {
	Results []*Result     `json:"results"`
	Total   int           `json:"total"`
	Took    time.Duration `json:"-"`
	TookMS  int64         `json:"took_ms"`

	// Degraded is set when the embedding provider was unavailable and the
	// query was answered from the keyword index alone.
	Degraded bool `json:"degraded,omitempty"`
}
