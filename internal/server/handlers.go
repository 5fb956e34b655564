package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yoniassia/memclawz/internal/chunk"
	"github.com/yoniassia/memclawz/internal/embed"
	"github.com/yoniassia/memclawz/internal/errors"
	"github.com/yoniassia/memclawz/internal/index"
	"github.com/yoniassia/memclawz/internal/search"
)

type searchRequest struct {
	Query         string    `json:"query,omitempty"`
	Vector        []float32 `json:"vector,omitempty"`
	Namespace     string    `json:"namespace,omitempty"`
	SharedOnly    bool      `json:"shared_only,omitempty"`
	TopK          int       `json:"top_k,omitempty"`
	VectorWeight  float64   `json:"vector_weight,omitempty"`
	KeywordWeight float64   `json:"keyword_weight,omitempty"`
}

type documentPayload struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"vector,omitempty"`
	SourcePath string    `json:"source_path,omitempty"`
	StartLine  int       `json:"start_line,omitempty"`
	EndLine    int       `json:"end_line,omitempty"`
	Heading    string    `json:"heading,omitempty"`
	Shared     bool      `json:"shared,omitempty"`
}

type indexRequest struct {
	Namespace string             `json:"namespace,omitempty"`
	Documents []*documentPayload `json:"documents"`
}

type deleteRequest struct {
	Namespace string   `json:"namespace,omitempty"`
	IDs       []string `json:"ids"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "memclawz",
		"embedder":  s.embedder.ModelName(),
		"available": s.embedder.Available(r.Context()),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ValidationError("invalid JSON body", err))
		return
	}

	home := homeNamespace(r)
	opts := search.Options{
		Namespace:     req.Namespace,
		Home:          home,
		Vector:        req.Vector,
		SharedOnly:    req.SharedOnly,
		TopK:          req.TopK,
		VectorWeight:  req.VectorWeight,
		KeywordWeight: req.KeywordWeight,
	}
	if opts.Namespace == "" {
		opts.Namespace = home
	}

	resp, err := s.engine.Search(r.Context(), req.Query, opts)
	if err != nil {
		s.recordSearch("error", nil)
		s.writeError(w, err)
		return
	}

	switch {
	case resp.Degraded:
		s.recordSearch("degraded", resp)
	case resp.Total == 0:
		s.recordSearch("zero_result", resp)
	default:
		s.recordSearch("ok", resp)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recordSearch(outcome string, resp *search.Response) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchesTotal.WithLabelValues(outcome).Inc()
	if resp != nil {
		s.metrics.SearchLatency.Observe(resp.Took.Seconds())
		s.metrics.SearchResultsCount.Observe(float64(resp.Total))
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ValidationError("invalid JSON body", err))
		return
	}

	home := homeNamespace(r)
	if req.Namespace == "" {
		req.Namespace = home
	}
	if err := s.manager.AuthorizeWrite(home, req.Namespace); err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Documents) == 0 {
		s.writeError(w, errors.ValidationError("documents are required", nil))
		return
	}
	if len(req.Documents) > s.cfg.MaxIndexBatch {
		s.writeError(w, errors.New(errors.ErrCodePayloadTooLarge,
			fmt.Sprintf("batch of %d exceeds limit of %d documents", len(req.Documents), s.cfg.MaxIndexBatch), nil))
		return
	}

	docs := make([]*index.Document, 0, len(req.Documents))
	for i, p := range req.Documents {
		if p.ID == "" {
			s.writeError(w, errors.ValidationError(
				fmt.Sprintf("document %d has no id", i), nil))
			return
		}
		if p.Text == "" {
			s.writeError(w, errors.ValidationError(
				fmt.Sprintf("document %s has no text", p.ID), nil))
			return
		}
		docs = append(docs, &index.Document{
			ID:          index.SanitizeID(p.ID),
			Namespace:   req.Namespace,
			Text:        p.Text,
			Vector:      p.Vector,
			SourcePath:  p.SourcePath,
			StartLine:   p.StartLine,
			EndLine:     p.EndLine,
			Heading:     p.Heading,
			ContentHash: chunk.ContentHash(p.Text),
			Shared:      p.Shared,
			UpdatedAt:   time.Now(),
		})
	}

	received := len(docs)
	docs, skipped := s.embedMissing(r, docs)

	ns, err := s.manager.Namespace(req.Namespace)
	if err != nil {
		s.writeError(w, err)
		return
	}

	docs, dimSkipped := filterDimensions(ns, docs)
	skipped += dimSkipped
	if dimSkipped > 0 {
		s.logger.Warn("documents_skipped_dimension_mismatch",
			slog.String("namespace", req.Namespace),
			slog.Int("skipped", dimSkipped),
			slog.Int("want", ns.Dimensions()))
	}

	applied, err := ns.Upsert(r.Context(), docs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.metrics != nil {
		s.metrics.DocsIndexedTotal.Add(float64(applied))
		s.metrics.NamespaceDocCount.WithLabelValues(req.Namespace).Set(float64(ns.Count()))
	}
	s.logger.Info("documents_indexed",
		slog.String("namespace", req.Namespace),
		slog.Int("applied", applied),
		slog.Int("skipped", skipped),
		slog.Int("received", received))

	s.writeJSON(w, http.StatusOK, map[string]any{
		"namespace":     req.Namespace,
		"indexed_count": applied,
		"skipped_count": skipped,
		"received":      received,
	})
}

// filterDimensions drops documents whose vectors do not match the
// namespace's established dimension. The first document to reach an empty
// namespace fixes it.
func filterDimensions(ns *index.NamespaceIndex, docs []*index.Document) ([]*index.Document, int) {
	want := ns.Dimensions()
	if want == 0 {
		return docs, 0
	}

	kept := docs[:0]
	skipped := 0
	for _, d := range docs {
		if len(d.Vector) != want {
			skipped++
			continue
		}
		kept = append(kept, d)
	}
	return kept, skipped
}

// embedMissing fills in vectors for documents the caller submitted without
// one. Documents whose embedding fails are dropped from the batch rather
// than failing the whole request; the caller reports them as skipped.
func (s *Server) embedMissing(r *http.Request, docs []*index.Document) ([]*index.Document, int) {
	var pending []*index.Document
	for _, d := range docs {
		if len(d.Vector) == 0 {
			pending = append(pending, d)
		}
	}

	failed := make(map[*index.Document]bool)
	for start := 0; start < len(pending); start += embed.DefaultBatchSize {
		end := min(start+embed.DefaultBatchSize, len(pending))
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Text
		}

		vectors, err := s.embedder.EmbedBatch(r.Context(), texts)
		if err != nil {
			if s.metrics != nil {
				s.metrics.EmbedRequestsTotal.WithLabelValues("error").Inc()
			}
			s.logger.Warn("embedding_failed",
				slog.Int("documents", len(batch)),
				slog.String("error", err.Error()))
			for _, d := range batch {
				failed[d] = true
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.EmbedRequestsTotal.WithLabelValues("ok").Inc()
		}
		for i, d := range batch {
			d.Vector = vectors[i]
		}
	}

	if len(failed) == 0 {
		return docs, 0
	}
	kept := docs[:0]
	for _, d := range docs {
		if failed[d] {
			continue
		}
		kept = append(kept, d)
	}
	return kept, len(failed)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.ValidationError("invalid JSON body", err))
		return
	}

	home := homeNamespace(r)
	if req.Namespace == "" {
		req.Namespace = home
	}
	if err := s.manager.AuthorizeWrite(home, req.Namespace); err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, errors.ValidationError("ids are required", nil))
		return
	}

	removed := 0
	if ns, ok := s.manager.Existing(req.Namespace); ok {
		n, err := ns.Delete(r.Context(), req.IDs)
		if err != nil {
			s.writeError(w, err)
			return
		}
		removed = n
		if s.metrics != nil {
			s.metrics.DocsDeletedTotal.Add(float64(removed))
			s.metrics.NamespaceDocCount.WithLabelValues(req.Namespace).Set(float64(ns.Count()))
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"namespace":     req.Namespace,
		"deleted_count": removed,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"namespaces": s.manager.StatsAll(),
	}
	if s.sync != nil {
		resp["sync"] = s.sync.Status()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	all := s.manager.All()
	names := make([]string, len(all))
	for i, ns := range all {
		names[i] = ns.Namespace()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"namespaces": names,
		"count":      len(names),
	})
}

func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		s.writeError(w, errors.ValidationError("sync is disabled", nil))
		return
	}
	s.sync.Trigger()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("response_write_failed", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := errors.ErrCodeInternal

	var se *errors.ServiceError
	if errors.As(err, &se) {
		code = se.Code
		switch {
		case se.Code == errors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case se.Code == errors.ErrCodeForbidden:
			status = http.StatusForbidden
		case se.Code == errors.ErrCodePayloadTooLarge:
			status = http.StatusRequestEntityTooLarge
		case se.Category == errors.CategoryValidation:
			status = http.StatusBadRequest
		case se.Retryable:
			status = http.StatusServiceUnavailable
		}
	}

	if status >= 500 {
		s.logger.Error("request_failed", slog.String("error", err.Error()))
	}
	s.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}
