package embed

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
)

// mockProvider is a test double that records calls and returns
// deterministic vectors derived from the text.
type mockProvider struct {
	batchCalls atomic.Int64
	queryCalls atomic.Int64
	closed     atomic.Bool

	mu      sync.Mutex
	batches [][]string

	dims     int
	model    string
	failWith error
}

func newMockProvider(dims int) *mockProvider {
	return &mockProvider{dims: dims, model: "mock-model"}
}

func (m *mockProvider) vectorFor(text string) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, m.dims)
	for i := range vec {
		vec[i] = float32((seed+uint32(i))%97) / 97
	}
	return vec
}

func (m *mockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.failWith != nil {
		return nil, m.failWith
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = m.vectorFor(text)
	}
	return results, nil
}

func (m *mockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	m.queryCalls.Add(1)
	if m.failWith != nil {
		return nil, m.failWith
	}
	return m.vectorFor(text), nil
}

func (m *mockProvider) recordedBatches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.batches...)
}

func (m *mockProvider) Dimensions() int { return m.dims }

func (m *mockProvider) ModelName() string { return m.model }

func (m *mockProvider) Available(ctx context.Context) bool { return true }

func (m *mockProvider) Close() error {
	m.closed.Store(true)
	return nil
}

// vectorNorm returns the Euclidean length of v.
func vectorNorm(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}
