package embed

import (
	"fmt"
	"strings"
	"time"
)

// ProviderType identifies an embedding provider.
type ProviderType string

const (
	// ProviderHTTP uses an external HTTP embedding service.
	ProviderHTTP ProviderType = "http"

	// ProviderStatic uses hash-based embeddings with no external dependency.
	ProviderStatic ProviderType = "static"
)

// Options configures embedder construction.
type Options struct {
	Provider   ProviderType
	Endpoint   string
	Model      string
	Dimensions int
	Timeout    time.Duration
	CacheSize  int
}

// NewEmbedder creates an embedder for the configured provider, wrapped with
// an LRU cache.
func NewEmbedder(opts Options) (Embedder, error) {
	var inner Embedder
	var err error

	switch opts.Provider {
	case ProviderHTTP:
		inner, err = NewHTTPEmbedder(HTTPConfig{
			Endpoint:   opts.Endpoint,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Timeout:    opts.Timeout,
		})
	case ProviderStatic, "":
		inner = NewStaticEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			opts.Provider, strings.Join(ValidProviders(), ", "))
	}
	if err != nil {
		return nil, err
	}

	return NewCachedEmbedder(inner, opts.CacheSize), nil
}

// ParseProvider converts a string to a ProviderType, defaulting to static.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "http":
		return ProviderHTTP
	default:
		return ProviderStatic
	}
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderHTTP), string(ProviderStatic)}
}

// String returns the string representation of a ProviderType.
func (p ProviderType) String() string {
	return string(p)
}
