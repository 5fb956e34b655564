package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yoniassia/memclawz/internal/chunk"
	"github.com/yoniassia/memclawz/internal/embed"
	"github.com/yoniassia/memclawz/internal/errors"
	"github.com/yoniassia/memclawz/internal/index"
	"github.com/yoniassia/memclawz/internal/telemetry"
)

// Phase names the step the sync loop is currently in.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseFetching  Phase = "fetching"
	PhaseChunking  Phase = "chunking"
	PhaseEmbedding Phase = "embedding"
	PhaseUpserting Phase = "upserting"
)

// Default loop parameters.
const (
	DefaultBatchSize = 50
	DefaultInterval  = 60 * time.Second
)

// Config configures the sync loop.
type Config struct {
	// Namespace receives the synced documents.
	Namespace string

	// StatePath is where the sync cursor lives.
	StatePath string

	// BatchSize is the number of documents per upsert.
	BatchSize int

	// FetchLimit is the number of log rows per fetch.
	FetchLimit int

	// Interval is the polling cadence.
	Interval time.Duration
}

// Status is a point-in-time snapshot of the loop for the stats endpoint.
type Status struct {
	Phase       Phase     `json:"phase"`
	LastSyncID  int64     `json:"last_sync_id"`
	TotalSynced int64     `json:"total_synced"`
	LastSyncAt  time.Time `json:"last_sync_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Syncer tails the memory log into a namespace index.
type Syncer struct {
	source   Source
	manager  *index.Manager
	embedder embed.Embedder
	chunker  *chunk.Chunker
	cfg      Config
	retry    errors.RetryConfig
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	trigger chan struct{}

	mu      sync.Mutex
	phase   Phase
	state   State
	lastErr error
}

// New creates a syncer. The cursor is loaded from the state file, so a
// corrupt state file fails construction rather than silently re-indexing.
func New(source Source, manager *index.Manager, embedder embed.Embedder, cfg Config, logger *slog.Logger) (*Syncer, error) {
	if source == nil {
		return nil, errors.InternalError("sync source is required", nil)
	}
	if manager == nil {
		return nil, errors.InternalError("namespace manager is required", nil)
	}
	if embedder == nil {
		return nil, errors.InternalError("embedder is required", nil)
	}
	if err := index.ValidateNamespace(cfg.Namespace); err != nil {
		return nil, err
	}
	if cfg.StatePath == "" {
		return nil, errors.ValidationError("sync state path is required", nil)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}
	if cfg.FetchLimit < cfg.BatchSize {
		return nil, errors.ValidationError("fetch limit must be at least the batch size", nil)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := LoadState(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	return &Syncer{
		source:   source,
		manager:  manager,
		embedder: embedder,
		chunker:  chunk.NewChunker(),
		cfg:      cfg,
		retry:    errors.DefaultRetryConfig(),
		logger:   logger.With(slog.String("component", "syncer")),
		trigger:  make(chan struct{}, 1),
		phase:    PhaseIdle,
		state:    st,
	}, nil
}

// SetMetrics attaches telemetry collectors. Call before Run.
func (s *Syncer) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// Run polls the source on the configured interval until the context is
// cancelled. Source changes signalled via Trigger shortcut the wait. Errors
// are logged and retried on the next cycle; the loop never dies.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info("sync_loop_started",
		slog.Duration("interval", s.cfg.Interval),
		slog.String("namespace", s.cfg.Namespace))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// Catch up immediately on startup.
	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync_loop_stopped")
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.trigger:
			s.cycle(ctx)
		}
	}
}

// Trigger requests an immediate sync cycle. Non-blocking; coalesces with a
// pending trigger.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the loop.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Phase:       s.phase,
		LastSyncID:  s.state.LastSyncID,
		TotalSynced: s.state.TotalSynced,
		LastSyncAt:  s.state.LastSyncAt,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// cycle runs one sync pass and records its outcome.
func (s *Syncer) cycle(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	switch {
	case err != nil:
		if s.metrics != nil {
			s.metrics.SyncBatchesTotal.WithLabelValues("error").Inc()
		}
		s.logger.Warn("sync_cycle_failed", slog.String("error", err.Error()))
	case n > 0:
		if s.metrics != nil {
			s.metrics.SyncBatchesTotal.WithLabelValues("ok").Inc()
		}
		s.logger.Info("sync_cycle_complete", slog.Int("synced", n))
	}
}

// RunOnce drains the log from the cursor to its current end. Fetched pages
// are applied and committed in record batches, so a crash mid-page re-syncs
// at most one batch; upserts are idempotent, so replays are harmless.
func (s *Syncer) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		s.setPhase(PhaseFetching)
		cursor := s.cursor()

		records, err := s.source.Fetch(ctx, cursor, s.cfg.FetchLimit)
		if err != nil {
			s.setPhase(PhaseIdle)
			return total, err
		}
		if len(records) == 0 {
			s.setPhase(PhaseIdle)
			return total, nil
		}

		for start := 0; start < len(records); start += s.cfg.BatchSize {
			end := start + s.cfg.BatchSize
			if end > len(records) {
				end = len(records)
			}
			batch := records[start:end]

			applied, err := s.applyBatch(ctx, batch)
			if err != nil {
				s.setPhase(PhaseIdle)
				return total, err
			}
			total += applied

			// Commit the cursor only now that the batch is fully applied.
			if err := s.advanceCursor(batch[len(batch)-1].RowID, applied); err != nil {
				s.setPhase(PhaseIdle)
				return total, err
			}
		}

		if len(records) < s.cfg.FetchLimit {
			s.setPhase(PhaseIdle)
			return total, nil
		}
	}
}

// applyBatch converts one batch of records into documents and upserts them.
func (s *Syncer) applyBatch(ctx context.Context, records []*Record) (int, error) {
	s.setPhase(PhaseChunking)
	docs := s.buildDocuments(records)

	s.setPhase(PhaseEmbedding)
	if err := s.embedMissing(ctx, docs); err != nil {
		return 0, err
	}

	ns, err := s.manager.Namespace(s.cfg.Namespace)
	if err != nil {
		return 0, err
	}

	// Records whose vectors do not match the established dimension are
	// skipped individually so one bad row cannot stall the cursor.
	docs = s.filterDimensions(ns, docs)

	s.setPhase(PhaseUpserting)
	applied := 0
	err = errors.Retry(ctx, s.retry, func() error {
		n, upsertErr := ns.Upsert(ctx, docs)
		if upsertErr != nil {
			return upsertErr
		}
		applied += n
		return nil
	})
	if err != nil {
		return applied, err
	}
	return applied, nil
}

// buildDocuments maps log records to index documents. Oversized records are
// re-chunked; malformed ones are skipped with a warning.
func (s *Syncer) buildDocuments(records []*Record) []*index.Document {
	docs := make([]*index.Document, 0, len(records))
	for _, r := range records {
		if r.Text == "" {
			s.logger.Warn("sync_record_skipped",
				slog.Int64("rowid", r.RowID),
				slog.String("reason", "empty text"))
			continue
		}
		if r.ID == "" {
			s.logger.Warn("sync_record_skipped",
				slog.Int64("rowid", r.RowID),
				slog.String("reason", "missing id"))
			continue
		}

		if len(r.Text) > chunk.DefaultMaxChars {
			sub, err := s.chunker.Chunk(r.Text, r.Path)
			if err != nil {
				s.logger.Warn("sync_record_skipped",
					slog.Int64("rowid", r.RowID),
					slog.String("reason", err.Error()))
				continue
			}
			for _, c := range sub {
				docs = append(docs, &index.Document{
					ID:          index.SanitizeID(c.ID),
					Text:        c.Text,
					SourcePath:  r.Path,
					StartLine:   c.StartLine,
					EndLine:     c.EndLine,
					Heading:     c.Heading,
					ContentHash: c.ContentHash,
					Shared:      r.Shared,
					UpdatedAt:   r.UpdatedAt,
				})
			}
			continue
		}

		docs = append(docs, &index.Document{
			ID:          index.SanitizeID(r.ID),
			Text:        r.Text,
			Vector:      r.Embedding,
			SourcePath:  r.Path,
			StartLine:   r.StartLine,
			EndLine:     r.EndLine,
			ContentHash: chunk.ContentHash(r.Text),
			Shared:      r.Shared,
			UpdatedAt:   r.UpdatedAt,
		})
	}
	return docs
}

// embedMissing fills in vectors for documents the log did not carry one for.
func (s *Syncer) embedMissing(ctx context.Context, docs []*index.Document) error {
	var pending []*index.Document
	for _, d := range docs {
		if len(d.Vector) == 0 {
			pending = append(pending, d)
		}
	}

	for start := 0; start < len(pending); start += embed.DefaultBatchSize {
		end := start + embed.DefaultBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Text
		}

		var vectors [][]float32
		err := errors.Retry(ctx, s.retry, func() error {
			var embedErr error
			vectors, embedErr = s.embedder.EmbedBatch(ctx, texts)
			return embedErr
		})
		if err != nil {
			return fmt.Errorf("embedding sync batch: %w", err)
		}
		for i, d := range batch {
			d.Vector = vectors[i]
		}
	}
	return nil
}

// filterDimensions drops documents whose vectors cannot enter the index.
func (s *Syncer) filterDimensions(ns *index.NamespaceIndex, docs []*index.Document) []*index.Document {
	dims := ns.Dimensions()
	out := docs[:0]
	for _, d := range docs {
		if dims == 0 {
			dims = len(d.Vector)
		}
		if len(d.Vector) != dims {
			s.logger.Warn("sync_record_skipped",
				slog.String("id", d.ID),
				slog.String("reason",
					fmt.Sprintf("vector has %d dimensions, index has %d", len(d.Vector), dims)))
			continue
		}
		out = append(out, d)
	}
	return out
}

func (s *Syncer) cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastSyncID
}

func (s *Syncer) advanceCursor(maxRowID int64, applied int) error {
	s.mu.Lock()
	s.state.LastSyncID = maxRowID
	s.state.TotalSynced += int64(applied)
	s.state.LastSyncAt = time.Now().UTC()
	st := s.state
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SyncCursorRowID.Set(float64(maxRowID))
	}
	return SaveState(s.cfg.StatePath, st)
}

func (s *Syncer) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}
