package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoniassia/memclawz/internal/errors"
)

func newTestIndex(t *testing.T) *NamespaceIndex {
	t.Helper()
	ns, err := NewNamespaceIndex("agent-1", Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ns.Close() })
	return ns
}

func doc(id, text string, vector []float32, shared bool) *Document {
	return &Document{
		ID:          id,
		Text:        text,
		Vector:      vector,
		ContentHash: "hash-" + text,
		Shared:      shared,
	}
}

func TestUpsertAndSearch(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	applied, err := ns.Upsert(ctx, []*Document{
		doc("d1", "postgres connection pool exhausted", []float32{1, 0, 0}, false),
		doc("d2", "user prefers terse answers", []float32{0, 1, 0}, true),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, 2, ns.Count())
	assert.Equal(t, 3, ns.Dimensions())

	hits, err := ns.VectorSearch(ctx, []float32{1, 0, 0}, 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "d1", hits[0].Doc.ID)

	kwHits, err := ns.KeywordSearch(ctx, "postgres pool", 5, false)
	require.NoError(t, err)
	require.NotEmpty(t, kwHits)
	assert.Equal(t, "d1", kwHits[0].Doc.ID)
}

func TestUpsertIdempotent(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	d := doc("d1", "stable content", []float32{1, 0, 0}, false)
	applied, err := ns.Upsert(ctx, []*Document{d})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	gen := ns.Stats().Generation

	// Same ID and same content hash is a no-op.
	applied, err = ns.Upsert(ctx, []*Document{d})
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
	assert.Equal(t, gen, ns.Stats().Generation)
	assert.Equal(t, 1, ns.Count())
}

func TestUpsertReplacesChangedContent(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	_, err := ns.Upsert(ctx, []*Document{
		doc("d1", "original text about redis", []float32{1, 0, 0}, false),
	})
	require.NoError(t, err)

	applied, err := ns.Upsert(ctx, []*Document{
		doc("d1", "revised text about kafka", []float32{0, 1, 0}, false),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, ns.Count())

	hits, err := ns.KeywordSearch(ctx, "redis", 5, false)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ns.KeywordSearch(ctx, "kafka", 5, false)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestUpsertSameContentDifferentIDsBothKept(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	a := doc("d1", "duplicated note", []float32{1, 0, 0}, false)
	b := doc("d2", "duplicated note", []float32{1, 0, 0}, false)

	applied, err := ns.Upsert(ctx, []*Document{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, 2, ns.Count())
}

func TestUpsertSharedFlagChangeApplied(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	d := doc("d1", "same text", []float32{1, 0, 0}, false)
	_, err := ns.Upsert(ctx, []*Document{d})
	require.NoError(t, err)

	promoted := doc("d1", "same text", []float32{1, 0, 0}, true)
	applied, err := ns.Upsert(ctx, []*Document{promoted})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.True(t, ns.Get("d1").Shared)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	_, err := ns.Upsert(ctx, []*Document{
		doc("d1", "first", []float32{1, 0, 0}, false),
	})
	require.NoError(t, err)

	_, err = ns.Upsert(ctx, []*Document{
		doc("d2", "second", []float32{1, 0}, false),
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))

	// Failed batch left nothing behind.
	assert.Equal(t, 1, ns.Count())
}

func TestUpsertValidation(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	_, err := ns.Upsert(ctx, []*Document{doc("", "text", []float32{1}, false)})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))

	_, err = ns.Upsert(ctx, []*Document{doc("d1", "text", nil, false)})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestDeleteIdempotent(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	_, err := ns.Upsert(ctx, []*Document{
		doc("d1", "to be deleted", []float32{1, 0, 0}, false),
	})
	require.NoError(t, err)

	removed, err := ns.Delete(ctx, []string{"d1", "never-existed"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, ns.Count())
	assert.Nil(t, ns.Get("d1"))

	// Deleting again is a no-op, not an error.
	removed, err = ns.Delete(ctx, []string{"d1"})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	hits, err := ns.KeywordSearch(ctx, "deleted", 5, false)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSharedOnlyFiltering(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	_, err := ns.Upsert(ctx, []*Document{
		doc("private", "secret deployment credentials note", []float32{1, 0, 0}, false),
		doc("public", "shared deployment runbook note", []float32{0.9, 0.1, 0}, true),
	})
	require.NoError(t, err)

	hits, err := ns.VectorSearch(ctx, []float32{1, 0, 0}, 5, true)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "public", hits[0].Doc.ID)

	kwHits, err := ns.KeywordSearch(ctx, "deployment note", 5, true)
	require.NoError(t, err)
	require.Len(t, kwHits, 1)
	assert.Equal(t, "public", kwHits[0].Doc.ID)
}

func TestSearchEmptyIndex(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	hits, err := ns.VectorSearch(ctx, []float32{1, 0, 0}, 5, false)
	require.NoError(t, err)
	assert.Empty(t, hits)

	kwHits, err := ns.KeywordSearch(ctx, "anything", 5, false)
	require.NoError(t, err)
	assert.Empty(t, kwHits)
}

func TestStatsSnapshot(t *testing.T) {
	ns := newTestIndex(t)
	ctx := context.Background()

	before := ns.Stats()
	assert.Equal(t, "agent-1", before.Namespace)
	assert.Zero(t, before.DocCount)
	assert.Zero(t, before.Dimensions)

	_, err := ns.Upsert(ctx, []*Document{
		doc("d1", "text", []float32{1, 0, 0}, false),
	})
	require.NoError(t, err)

	after := ns.Stats()
	assert.Equal(t, 1, after.DocCount)
	assert.Equal(t, 3, after.Dimensions)
	assert.Greater(t, after.Generation, before.Generation)
	assert.WithinDuration(t, time.Now(), after.UpdatedAt, 5*time.Second)
}
