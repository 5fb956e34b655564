// Package chunk splits raw documents into bounded, overlapping text units
// with stable identifiers. Heading-structured documents are split at heading
// boundaries first; over-long sections are sub-split with a fixed overlap
// window.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunking defaults.
const (
	// DefaultMaxChars caps the text length of a single chunk.
	DefaultMaxChars = 2000

	// DefaultOverlap is the number of trailing characters repeated at the
	// start of the next window when a section is sub-split.
	DefaultOverlap = 200

	// DefaultMinSection is the minimum section body size; smaller heading
	// sections are merged into the previous chunk.
	DefaultMinSection = 50
)

// Chunk is a contiguous slice of a source document.
// Chunks are immutable once created; a changed source region produces a new
// chunk with the same ID but a different ContentHash.
type Chunk struct {
	// ID is derived from the source path and start line, so re-chunking
	// the same region always yields the same ID.
	ID string

	// SourcePath is the path of the originating document.
	SourcePath string

	// StartLine and EndLine are 1-indexed, inclusive line positions.
	StartLine int
	EndLine   int

	// Text is the chunk body, capped at the configured character budget.
	Text string

	// Heading is the nearest enclosing heading title, if any.
	Heading string

	// ContentHash is a digest of the whitespace-normalized text, used for
	// dedup so trivial re-formatting does not force re-embedding.
	ContentHash string
}

// ChunkID returns the deterministic chunk identifier for a source region.
func ChunkID(sourcePath string, startLine int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", sourcePath, startLine)))
	return hex.EncodeToString(sum[:])[:32]
}

// ContentHash computes the dedup digest over whitespace-normalized text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// NormalizeText collapses all whitespace runs to single spaces and trims.
// Two texts that differ only in formatting normalize identically.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
