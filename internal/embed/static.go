package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// DefaultStaticDimensions is the vector size of the static provider.
const DefaultStaticDimensions = 256

const (
	staticTokenWeight   = 0.7
	staticTrigramWeight = 0.3
)

// staticTokenPattern extracts word-like runs, unicode letters and digits
// included, from lowercased text.
var staticTokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// StaticProvider generates deterministic embeddings by hashing tokens and
// character trigrams into a fixed number of buckets. It needs no network
// and no model files, which makes it the offline and test fallback.
// Vectors from different texts still land near each other when the texts
// share vocabulary, so ranking stays meaningful even without a real model.
type StaticProvider struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider builds the provider. Non-positive dims selects
// DefaultStaticDimensions.
func NewStaticProvider(dims int) *StaticProvider {
	if dims <= 0 {
		dims = DefaultStaticDimensions
	}
	return &StaticProvider{dims: dims}
}

// EmbedBatch embeds each text independently.
func (p *StaticProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.ensureOpen(); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = p.embed(text)
	}
	return results, nil
}

// EmbedQuery embeds a single search query.
func (p *StaticProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := p.ensureOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.embed(text), nil
}

func (p *StaticProvider) embed(text string) []float32 {
	vec := make([]float32, p.dims)
	if strings.TrimSpace(text) == "" {
		return vec
	}

	tokens := staticTokenPattern.FindAllString(strings.ToLower(text), -1)
	for _, token := range tokens {
		p.addFeature(vec, token, staticTokenWeight)

		runes := []rune(token)
		for i := 0; i+3 <= len(runes); i++ {
			p.addFeature(vec, string(runes[i:i+3]), staticTrigramWeight)
		}
	}

	return normalizeVector(vec)
}

// addFeature hashes the feature into a bucket. The top hash bit picks the
// sign so unrelated features cancel out instead of accumulating.
func (p *StaticProvider) addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(p.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

func (p *StaticProvider) ensureOpen() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return synerrors.InternalError("static provider is closed", nil)
	}
	return nil
}

// Dimensions returns the embedding dimension.
func (p *StaticProvider) Dimensions() int {
	return p.dims
}

// ModelName returns the model identifier.
func (p *StaticProvider) ModelName() string {
	return "static"
}

// Available always reports true; there is nothing to reach.
func (p *StaticProvider) Available(ctx context.Context) bool {
	return p.ensureOpen() == nil
}

// Close marks the provider closed.
func (p *StaticProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
