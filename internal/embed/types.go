// Package embed turns text into vectors. A Provider abstracts over the
// concrete model service (Ollama, OpenAI-compatible APIs, or the offline
// static hasher) so the indexing and search paths never care where the
// numbers come from.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per embedding request.
	DefaultBatchSize = 10

	// DefaultTimeout bounds a single embedding HTTP request. Cold model
	// loads dominate this; warm requests finish in well under a second.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of attempts for a request that
	// fails at the transport level.
	DefaultMaxRetries = 3
)

// Provider generates vector embeddings for text. Implementations are safe
// for concurrent use.
type Provider interface {
	// EmbedBatch embeds a batch of documents. The result has the same
	// length and order as texts; blank texts embed to zero vectors.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the provider can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors pass through
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
