package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yoniassia/memclawz/internal/embed"
	"github.com/yoniassia/memclawz/internal/errors"
	"github.com/yoniassia/memclawz/internal/index"
)

// Config holds engine tuning parameters.
type Config struct {
	VectorWeight        float64
	KeywordWeight       float64
	CandidateMultiplier int
	DefaultTopK         int
	MaxTopK             int
}

// Engine runs hybrid queries against the namespace table.
type Engine struct {
	manager  *index.Manager
	embedder embed.Embedder
	config   Config
	logger   *slog.Logger
}

// NewEngine creates a hybrid search engine.
func NewEngine(manager *index.Manager, embedder embed.Embedder, cfg Config, logger *slog.Logger) (*Engine, error) {
	if manager == nil {
		return nil, errors.InternalError("namespace manager is required", nil)
	}
	if embedder == nil {
		return nil, errors.InternalError("embedder is required", nil)
	}
	if cfg.VectorWeight == 0 && cfg.KeywordWeight == 0 {
		cfg.VectorWeight = DefaultVectorWeight
		cfg.KeywordWeight = DefaultKeywordWeight
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = MaxTopK
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		manager:  manager,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Search runs a hybrid query. The candidate pool is gathered from both
// signals in parallel across the target namespaces, fused once over the
// combined pool, and truncated to TopK.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" && len(opts.Vector) == 0 {
		return nil, errors.ValidationError("query text or a vector is required", nil)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = e.config.DefaultTopK
	}
	if topK > e.config.MaxTopK {
		topK = e.config.MaxTopK
	}

	vectorWeight, keywordWeight := e.config.VectorWeight, e.config.KeywordWeight
	if opts.VectorWeight != 0 || opts.KeywordWeight != 0 {
		sum := opts.VectorWeight + opts.KeywordWeight
		if sum < 0.999 || sum > 1.001 {
			return nil, errors.ValidationError("vector and keyword weights must sum to 1", nil)
		}
		vectorWeight, keywordWeight = opts.VectorWeight, opts.KeywordWeight
	}

	targets, err := e.resolveTargets(opts)
	if err != nil {
		return nil, err
	}

	// The query is embedded once for every namespace, unless the caller
	// supplied a vector. An unavailable embedding provider degrades the
	// query to keyword-only instead of failing it.
	degraded := false
	queryVec := opts.Vector
	if queryVec == nil && query != "" && vectorWeight > 0 {
		queryVec, err = e.embedder.Embed(ctx, query)
		if err != nil {
			if !errors.IsRetryable(err) && errors.GetCode(err) != errors.ErrCodeEmbeddingUnavailable {
				return nil, err
			}
			e.logger.Warn("search_degraded_keyword_only",
				slog.String("error", err.Error()))
			degraded = true
		}
	}

	candidateK := topK * e.config.CandidateMultiplier
	pool := newCandidatePool()
	var poolMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		ns := target.ns
		sharedOnly := target.sharedOnly

		g.Go(func() error {
			var vecHits []*index.VectorHit
			var kwHits []*index.KeywordHit

			if queryVec != nil && !degraded {
				var searchErr error
				vecHits, searchErr = ns.VectorSearch(gctx, queryVec, candidateK, sharedOnly)
				if searchErr != nil {
					if errors.GetCode(searchErr) == errors.ErrCodeDimensionMismatch {
						// This namespace was indexed with a different
						// embedder; serve it from keywords alone.
						e.logger.Warn("vector_search_skipped",
							slog.String("namespace", ns.Namespace()),
							slog.String("error", searchErr.Error()))
					} else {
						return searchErr
					}
				}
			}

			if query != "" {
				var searchErr error
				kwHits, searchErr = ns.KeywordSearch(gctx, query, candidateK, sharedOnly)
				if searchErr != nil {
					return searchErr
				}
			}

			poolMu.Lock()
			defer poolMu.Unlock()
			for _, hit := range vecHits {
				pool.addVector(ns.Namespace(), hit)
			}
			for _, hit := range kwHits {
				pool.addKeyword(ns.Namespace(), hit)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := fuse(pool.all(), vectorWeight, keywordWeight)
	if len(results) > topK {
		results = results[:topK]
	}

	took := time.Since(start)
	return &Response{
		Results:  results,
		Total:    len(results),
		Took:     took,
		TookMS:   took.Milliseconds(),
		Degraded: degraded,
	}, nil
}

// searchTarget pairs a namespace with its visibility for this query.
type searchTarget struct {
	ns         *index.NamespaceIndex
	sharedOnly bool
}

// resolveTargets maps the requested namespace to concrete indexes. Fan-out
// covers every existing namespace; any namespace other than the caller's own
// is restricted to shared documents. An explicit SharedOnly option tightens
// the restriction to the caller's own namespace as well.
func (e *Engine) resolveTargets(opts Options) ([]searchTarget, error) {
	if opts.Namespace == index.AllNamespaces {
		all := e.manager.All()
		targets := make([]searchTarget, len(all))
		for i, ns := range all {
			targets[i] = searchTarget{
				ns:         ns,
				sharedOnly: opts.SharedOnly || ns.Namespace() != opts.Home,
			}
		}
		return targets, nil
	}

	if err := index.ValidateNamespace(opts.Namespace); err != nil {
		return nil, err
	}

	ns, ok := e.manager.Existing(opts.Namespace)
	if !ok {
		// Searching a namespace that has never been written is an empty
		// result, not an error.
		return nil, nil
	}
	return []searchTarget{{
		ns:         ns,
		sharedOnly: opts.SharedOnly || opts.Namespace != opts.Home,
	}}, nil
}
