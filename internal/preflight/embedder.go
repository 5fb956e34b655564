package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/yoniassia/memclawz/internal/embed"
)

// CheckEmbedder probes the embedding provider. An unreachable provider is
// a warning, not a failure: search degrades to keyword-only and sync
// retries on the next cycle.
func (c *Checker) CheckEmbedder(ctx context.Context, embedder embed.Embedder) CheckResult {
	result := CheckResult{
		Name:     "embedding_provider",
		Required: false,
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if !embedder.Available(probeCtx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s is unreachable (keyword-only until it recovers)", embedder.ModelName())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dimensions)", embedder.ModelName(), embedder.Dimensions())
	return result
}
