package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoniassia/memclawz/internal/embed"
	"github.com/yoniassia/memclawz/internal/errors"
	"github.com/yoniassia/memclawz/internal/index"
)

type testFixture struct {
	manager  *index.Manager
	embedder embed.Embedder
	engine   *Engine
	seq      map[string]int
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()

	manager, err := index.NewManager(index.Config{}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	engine, err := NewEngine(manager, embedder, Config{}, nil)
	require.NoError(t, err)

	return &testFixture{manager: manager, embedder: embedder, engine: engine, seq: map[string]int{}}
}

// indexDocs assigns IDs from a per-namespace sequence so repeated calls do
// not overwrite earlier documents.
func (f *testFixture) indexDocs(t *testing.T, namespace string, shared bool, texts ...string) {
	t.Helper()
	ctx := context.Background()

	ns, err := f.manager.Namespace(namespace)
	require.NoError(t, err)

	docs := make([]*index.Document, len(texts))
	for i, text := range texts {
		vec, err := f.embedder.Embed(ctx, text)
		require.NoError(t, err)
		docs[i] = &index.Document{
			ID:          fmt.Sprintf("%s-%d", namespace, f.seq[namespace]),
			Text:        text,
			Vector:      vec,
			ContentHash: text,
			Shared:      shared,
		}
		f.seq[namespace]++
	}
	_, err = ns.Upsert(ctx, docs)
	require.NoError(t, err)
}

func TestSearchExactMatchRanksFirst(t *testing.T) {
	f := newFixture(t)
	f.indexDocs(t, "agent-1", false,
		"hello world",
		"hello there",
		"goodbye world",
	)

	resp, err := f.engine.Search(context.Background(), "hello world", Options{
		Namespace: "agent-1",
		Home:      "agent-1",
		TopK:      3,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "hello world", resp.Results[0].Text)
	assert.Greater(t, resp.Results[0].Score, resp.Results[1].Score)
	assert.False(t, resp.Degraded)
}

func TestSearchKeywordHitsWithinTopK(t *testing.T) {
	f := newFixture(t)
	f.indexDocs(t, "agent-1", false,
		"hello world",
		"hello there",
		"goodbye world",
	)

	resp, err := f.engine.Search(context.Background(), "hello", Options{
		Namespace: "agent-1",
		Home:      "agent-1",
		TopK:      2,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	for _, r := range resp.Results {
		assert.Contains(t, r.Text, "hello")
		assert.Greater(t, r.KeywordScore, 0.0)
	}
}

func TestSearchWithSuppliedVector(t *testing.T) {
	f := newFixture(t)
	f.indexDocs(t, "agent-1", false,
		"the deploy pipeline failed on tuesday",
		"user asked about billing",
	)

	vec, err := f.embedder.Embed(context.Background(), "deploy pipeline")
	require.NoError(t, err)

	// No query text at all: the vector signal alone drives the search.
	resp, err := f.engine.Search(context.Background(), "", Options{
		Namespace: "agent-1",
		Home:      "agent-1",
		Vector:    vec,
		TopK:      2,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "the deploy pipeline failed on tuesday", resp.Results[0].Text)
	assert.Zero(t, resp.Results[0].KeywordScore)
}

func TestSearchSharedOnlyOwnNamespace(t *testing.T) {
	f := newFixture(t)
	f.indexDocs(t, "agent-1", false, "private capacity planning doc")
	f.indexDocs(t, "agent-1", true, "shared capacity planning doc")

	resp, err := f.engine.Search(context.Background(), "capacity planning", Options{
		Namespace:  "agent-1",
		Home:       "agent-1",
		SharedOnly: true,
		TopK:       10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Shared)
}

func TestSearchDeterministic(t *testing.T) {
	f := newFixture(t)
	f.indexDocs(t, "agent-1", false,
		"the deploy pipeline failed on tuesday",
		"the deploy pipeline failed on wednesday",
		"user asked about billing",
	)

	var prev []string
	for i := 0; i < 3; i++ {
		resp, err := f.engine.Search(context.Background(), "deploy pipeline failed", Options{
			Namespace: "agent-1",
			Home:      "agent-1",
		})
		require.NoError(t, err)

		ids := make([]string, len(resp.Results))
		for j, r := range resp.Results {
			ids[j] = r.ID
		}
		if prev != nil {
			assert.Equal(t, prev, ids)
		}
		prev = ids
	}
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Search(context.Background(), "   ", Options{Namespace: "agent-1", Home: "agent-1"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestSearchUnknownNamespaceEmpty(t *testing.T) {
	f := newFixture(t)

	resp, err := f.engine.Search(context.Background(), "anything", Options{
		Namespace: "never-written",
		Home:      "never-written",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Total)
}

func TestSearchInvalidWeights(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Search(context.Background(), "query", Options{
		Namespace:     "agent-1",
		Home:          "agent-1",
		VectorWeight:  0.7,
		KeywordWeight: 0.7,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestSearchFanOutAttributesNamespaces(t *testing.T) {
	f := newFixture(t)
	f.indexDocs(t, "agent-1", true, "shared kubernetes upgrade notes")
	f.indexDocs(t, "agent-2", true, "shared kubernetes rollback notes")

	resp, err := f.engine.Search(context.Background(), "kubernetes notes", Options{
		Namespace: index.AllNamespaces,
		Home:      "agent-1",
		TopK:      10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	namespaces := map[string]bool{}
	for _, r := range resp.Results {
		namespaces[r.Namespace] = true
	}
	assert.True(t, namespaces["agent-1"])
	assert.True(t, namespaces["agent-2"])
}

func TestSearchFanOutVisibility(t *testing.T) {
	f := newFixture(t)
	f.indexDocs(t, "agent-1", false, "agent one private incident review")
	f.indexDocs(t, "agent-2", false, "agent two private incident review")
	f.indexDocs(t, "agent-2", true, "agent two shared incident summary")

	resp, err := f.engine.Search(context.Background(), "incident", Options{
		Namespace: index.AllNamespaces,
		Home:      "agent-1",
		TopK:      10,
	})
	require.NoError(t, err)

	for _, r := range resp.Results {
		if r.Namespace != "agent-1" {
			assert.True(t, r.Shared,
				"foreign namespace results must be shared, got private doc %s", r.ID)
		}
	}

	// Own private doc is visible, foreign private doc is not.
	ids := map[string]bool{}
	for _, r := range resp.Results {
		ids[r.ID] = true
	}
	assert.True(t, ids["agent-1-0"])
	assert.False(t, ids["agent-2-0"])
	assert.True(t, ids["agent-2-1"])
}

func TestSearchForeignNamespaceSharedOnly(t *testing.T) {
	f := newFixture(t)
	f.indexDocs(t, "agent-2", false, "private migration plan")
	f.indexDocs(t, "agent-2", true, "shared migration checklist")

	resp, err := f.engine.Search(context.Background(), "migration", Options{
		Namespace: "agent-2",
		Home:      "agent-1",
		TopK:      10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.True(t, resp.Results[0].Shared)
}

// failingEmbedder simulates an unavailable embedding provider.
type failingEmbedder struct {
	*embed.StaticEmbedder
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.EmbeddingUnavailable("http://localhost:9999", fmt.Errorf("connection refused"))
}

func TestSearchDegradesToKeywordOnly(t *testing.T) {
	f := newFixture(t)
	f.indexDocs(t, "agent-1", false, "redis connection pool exhausted")

	degradedEngine, err := NewEngine(f.manager, &failingEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}, Config{}, nil)
	require.NoError(t, err)

	resp, err := degradedEngine.Search(context.Background(), "redis pool", Options{
		Namespace: "agent-1",
		Home:      "agent-1",
	})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	require.Len(t, resp.Results, 1)
	assert.Zero(t, resp.Results[0].VectorScore)
	assert.Greater(t, resp.Results[0].Score, 0.0)
}

func TestSearchTopKClamped(t *testing.T) {
	f := newFixture(t)

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("note number %d about the shared cache", i)
	}
	f.indexDocs(t, "agent-1", false, texts...)

	resp, err := f.engine.Search(context.Background(), "shared cache note", Options{
		Namespace: "agent-1",
		Home:      "agent-1",
		TopK:      5,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Results), 5)
}
