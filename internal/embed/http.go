package embed

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yoniassia/memclawz/internal/errors"
)

// HTTPConfig configures the HTTP embedding service client.
type HTTPConfig struct {
	// Endpoint is the base URL of the embedding service.
	Endpoint string

	// Model is the model name passed through to the service.
	Model string

	// Dimensions is the expected vector dimension. Zero means detect from
	// the first response.
	Dimensions int

	// Timeout bounds a single embedding request.
	Timeout time.Duration

	// PoolSize is the connection pool size.
	PoolSize int
}

// HTTPEmbedder generates embeddings via an external HTTP embedding service.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig

	mu     sync.RWMutex
	closed bool
	dims   int
}

var _ Embedder = (*HTTPEmbedder)(nil)

type embedRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewHTTPEmbedder creates an embedder backed by an HTTP embedding service.
// The endpoint is not contacted until the first call.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, errors.ValidationError("embedding endpoint is required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	// Timeouts are applied per-request via context so callers can tighten
	// them; no static client timeout.
	return &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return nil, errors.New(errors.ErrCodeEmptyInput, "cannot embed empty text", nil)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Text: text, Model: e.config.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embed request: %w", err)
	}

	url := strings.TrimRight(e.config.Endpoint, "/") + "/embed"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.New(errors.ErrCodeEmbeddingTimeout,
				fmt.Sprintf("embedding request timed out after %s", e.config.Timeout), err)
		}
		return nil, errors.EmbeddingUnavailable(e.config.Endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.EmbeddingUnavailable(e.config.Endpoint,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(msg)))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.EmbeddingUnavailable(e.config.Endpoint,
			fmt.Errorf("failed to decode response: %w", err))
	}
	if len(result.Embedding) == 0 {
		return nil, errors.EmbeddingUnavailable(e.config.Endpoint,
			fmt.Errorf("service returned empty embedding"))
	}

	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(result.Embedding)
	}
	dims := e.dims
	e.mu.Unlock()

	if len(result.Embedding) != dims {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("service returned %d dimensions, expected %d", len(result.Embedding), dims), nil)
	}

	return result.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts. The service exposes a
// single-text endpoint, so the batch is issued sequentially; the first failure
// aborts the batch.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, errors.ValidationError(
			fmt.Sprintf("batch size %d exceeds maximum %d", len(texts), MaxBatchSize), nil)
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.dims == 0 {
		return DefaultDimensions
	}
	return e.dims
}

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string {
	if e.config.Model != "" {
		return e.config.Model
	}
	return "http"
}

// Available probes the service health endpoint.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return false
	}
	e.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimRight(e.config.Endpoint, "/") + "/health"
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases connection pool resources.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
