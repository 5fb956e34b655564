package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoniassia/memclawz/internal/chunk"
	"github.com/yoniassia/memclawz/internal/embed"
	"github.com/yoniassia/memclawz/internal/errors"
	"github.com/yoniassia/memclawz/internal/index"
	"github.com/yoniassia/memclawz/internal/telemetry"
)

// fakeSource serves records from a slice.
type fakeSource struct {
	records []*Record
	fetches int
}

func (f *fakeSource) Fetch(_ context.Context, cursor int64, limit int) ([]*Record, error) {
	f.fetches++
	var out []*Record
	for _, r := range f.records {
		if r.RowID > cursor {
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSource) MaxRowID(context.Context) (int64, error) {
	var max int64
	for _, r := range f.records {
		if r.RowID > max {
			max = r.RowID
		}
	}
	return max, nil
}

func (f *fakeSource) Close() error { return nil }

func rec(rowID int64, id, text string) *Record {
	return &Record{RowID: rowID, ID: id, Text: text, Path: "memory/" + id + ".md"}
}

type syncFixture struct {
	source  Source
	manager *index.Manager
	syncer  *Syncer
	state   string
}

func newSyncFixture(t *testing.T, source Source, cfg Config) *syncFixture {
	t.Helper()

	manager, err := index.NewManager(index.Config{}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { _ = embedder.Close() })

	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.StatePath == "" {
		cfg.StatePath = filepath.Join(t.TempDir(), "sync-state.json")
	}

	s, err := New(source, manager, embedder, cfg, nil)
	require.NoError(t, err)
	s.retry = errors.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	return &syncFixture{source: source, manager: manager, syncer: s, state: cfg.StatePath}
}

func TestRunOnceIndexesRecords(t *testing.T) {
	f := newSyncFixture(t, &fakeSource{records: []*Record{
		rec(1, "m1", "postgres timeout on staging"),
		rec(2, "m2", "user prefers short answers"),
	}}, Config{})

	n, err := f.syncer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ns, ok := f.manager.Existing("default")
	require.True(t, ok)
	assert.Equal(t, 2, ns.Count())

	status := f.syncer.Status()
	assert.Equal(t, PhaseIdle, status.Phase)
	assert.Equal(t, int64(2), status.LastSyncID)
	assert.Equal(t, int64(2), status.TotalSynced)

	// Cursor survives restarts via the state file.
	st, err := LoadState(f.state)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.LastSyncID)
}

func TestRunOnceUpdatesCursorMetric(t *testing.T) {
	f := newSyncFixture(t, &fakeSource{records: []*Record{
		rec(1, "m1", "postgres timeout on staging"),
		rec(7, "m2", "user prefers short answers"),
	}}, Config{})
	m := telemetry.New()
	f.syncer.SetMetrics(m)

	_, err := f.syncer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(7), testutil.ToFloat64(m.SyncCursorRowID))
}

func TestRunOnceReplayIsIdempotent(t *testing.T) {
	src := &fakeSource{records: []*Record{rec(1, "m1", "a memory worth keeping")}}
	f := newSyncFixture(t, src, Config{})
	ctx := context.Background()

	n, err := f.syncer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.syncer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ns, _ := f.manager.Existing("default")
	assert.Equal(t, 1, ns.Count())
}

func TestRunOncePaginatesToEnd(t *testing.T) {
	var records []*Record
	for i := 1; i <= 12; i++ {
		records = append(records, rec(int64(i), fmt.Sprintf("m%d", i), fmt.Sprintf("memory note %d", i)))
	}
	f := newSyncFixture(t, &fakeSource{records: records}, Config{BatchSize: 5, FetchLimit: 5})

	n, err := f.syncer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.Equal(t, int64(12), f.syncer.Status().LastSyncID)

	ns, _ := f.manager.Existing("default")
	assert.Equal(t, 12, ns.Count())
}

func TestRunOnceSkipsMalformedRecords(t *testing.T) {
	f := newSyncFixture(t, &fakeSource{records: []*Record{
		rec(1, "m1", "good record"),
		rec(2, "m2", ""),     // empty text
		rec(3, "", "no id"),  // missing id
		rec(4, "m4", "another good record"),
	}}, Config{})

	n, err := f.syncer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The cursor still covers the skipped rows.
	assert.Equal(t, int64(4), f.syncer.Status().LastSyncID)
}

func TestRunOnceChunksOversizedRecords(t *testing.T) {
	long := strings.Repeat("a paragraph about the incident with plenty of words\n", 80)
	require.Greater(t, len(long), chunk.DefaultMaxChars)

	f := newSyncFixture(t, &fakeSource{records: []*Record{
		rec(1, "big", long),
	}}, Config{})

	n, err := f.syncer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Greater(t, n, 1)

	ns, _ := f.manager.Existing("default")
	assert.Greater(t, ns.Count(), 1)
}

func TestRunOnceUsesPrecomputedEmbeddings(t *testing.T) {
	vec := make([]float32, 4)
	vec[0] = 1
	src := &fakeSource{records: []*Record{
		{RowID: 1, ID: "m1", Text: "precomputed", Embedding: vec},
	}}
	f := newSyncFixture(t, src, Config{})

	n, err := f.syncer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ns, _ := f.manager.Existing("default")
	assert.Equal(t, 4, ns.Dimensions())
}

func TestRunOnceSkipsDimensionMismatches(t *testing.T) {
	good := make([]float32, 4)
	good[0] = 1
	bad := make([]float32, 8)
	bad[0] = 1

	src := &fakeSource{records: []*Record{
		{RowID: 1, ID: "m1", Text: "fits", Embedding: good},
		{RowID: 2, ID: "m2", Text: "does not fit", Embedding: bad},
	}}
	f := newSyncFixture(t, src, Config{})

	n, err := f.syncer.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(2), f.syncer.Status().LastSyncID)
}

func TestRunOnceSanitizesIDs(t *testing.T) {
	f := newSyncFixture(t, &fakeSource{records: []*Record{
		rec(1, "notes/today.md:12", "sanitized id record"),
	}}, Config{})

	_, err := f.syncer.RunOnce(context.Background())
	require.NoError(t, err)

	ns, _ := f.manager.Existing("default")
	assert.NotNil(t, ns.Get("notes_today.md_12"))
}

// flakyEmbedder serves the first batch and fails afterwards.
type flakyEmbedder struct {
	*embed.StaticEmbedder
	calls int
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New(errors.ErrCodeEmbeddingUnavailable, "connection refused", nil)
	}
	return f.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestRunOnceCommitsCursorPerBatch(t *testing.T) {
	manager, err := index.NewManager(index.Config{}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	src := &fakeSource{records: []*Record{
		rec(1, "m1", "first memory"),
		rec(2, "m2", "second memory"),
		rec(3, "m3", "third memory"),
		rec(4, "m4", "fourth memory"),
	}}
	emb := &flakyEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}
	t.Cleanup(func() { _ = emb.Close() })

	statePath := filepath.Join(t.TempDir(), "sync-state.json")
	s, err := New(src, manager, emb, Config{
		Namespace:  "default",
		StatePath:  statePath,
		BatchSize:  2,
		FetchLimit: 10,
	}, nil)
	require.NoError(t, err)
	s.retry = errors.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	n, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, n)

	// The first batch committed before the failure; only the second batch
	// replays on the next cycle.
	st, err := LoadState(statePath)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.LastSyncID)
	assert.Equal(t, int64(2), st.TotalSynced)
}

// failingSource fails the first n fetches.
type failingSource struct {
	fakeSource
	failures int
}

func (f *failingSource) Fetch(ctx context.Context, cursor int64, limit int) ([]*Record, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New(errors.ErrCodeSourceUnavailable, "log locked", nil)
	}
	return f.fakeSource.Fetch(ctx, cursor, limit)
}

func TestRunOnceSourceFailureKeepsCursor(t *testing.T) {
	src := &failingSource{
		fakeSource: fakeSource{records: []*Record{rec(1, "m1", "text")}},
		failures:   1,
	}
	f := newSyncFixture(t, src, Config{})
	ctx := context.Background()

	_, err := f.syncer.RunOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSourceUnavailable, errors.GetCode(err))
	assert.Equal(t, int64(0), f.syncer.Status().LastSyncID)

	// The next cycle picks the same page up again.
	n, err := f.syncer.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), f.syncer.Status().LastSyncID)
}

func TestTriggerCoalesces(t *testing.T) {
	f := newSyncFixture(t, &fakeSource{}, Config{})

	// Repeated triggers while busy collapse into one pending signal.
	f.syncer.Trigger()
	f.syncer.Trigger()
	f.syncer.Trigger()
	assert.Len(t, f.syncer.trigger, 1)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newSyncFixture(t, &fakeSource{}, Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.syncer.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("sync loop did not stop")
	}
}
