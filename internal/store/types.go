// Package store persists embedded entries into named collections and
// serves similarity search over them. The Qdrant backend talks REST to a
// running server; the local backend keeps HNSW graphs in process for
// offline use and tests. A Bleve keyword sidecar rides along for hybrid
// retrieval.
package store

import (
	"context"
	"reflect"
	"strings"
)

// Entry is one stored chunk: deterministic id, embedding, raw content and
// the file-level metadata payload.
type Entry struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// Result is one search hit, ranked by descending score.
type Result struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Filter narrows search results to entries whose metadata matches every
// listed value exactly.
type Filter map[string]any

// Store is the persistence contract the indexing and search paths build
// on. Implementations are safe for concurrent use by worker pools.
type Store interface {
	// Ensure creates the collection if absent and verifies its dimension
	// if present. A dimension mismatch is a configuration error.
	Ensure(ctx context.Context, collection string, dims int) error

	// Upsert writes entries keyed by ID, last write wins. Re-upserting
	// identical content is a no-op equivalent.
	Upsert(ctx context.Context, collection string, entries []Entry) error

	// Delete removes entries by id. Unknown ids and missing collections
	// are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// Search returns up to limit results by descending similarity. An
	// empty or nonexistent collection yields an empty slice, not an
	// error.
	Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]Result, error)

	// ListCollections names the existing collections.
	ListCollections(ctx context.Context) ([]string, error)

	// DeleteCollection drops a collection. Idempotent.
	DeleteCollection(ctx context.Context, collection string) error

	// Count returns the exact number of stored entries.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases backend resources.
	Close() error
}

// DefaultSearchLimit applies when a caller passes a non-positive limit.
const DefaultSearchLimit = 10

// VectorNameForModel derives the named-vector identifier from an
// embedding model id: the last path segment, lowercased, prefixed with
// "fast-". "sentence-transformers/all-MiniLM-L6-v2" becomes
// "fast-all-minilm-l6-v2". Characters the store would reject are
// replaced with hyphens.
func VectorNameForModel(model string) string {
	if model == "" {
		return "vector"
	}
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	model = strings.ToLower(model)

	var b strings.Builder
	b.Grow(len(model))
	for _, r := range model {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return "fast-" + b.String()
}

// payloadFromEntry renders the wire payload: raw content under
// "document", file metadata under "metadata".
func payloadFromEntry(e Entry) map[string]any {
	return map[string]any{
		"document": e.Content,
		"metadata": e.Metadata,
	}
}

// resultFromPayload rebuilds a Result from a stored payload.
func resultFromPayload(id string, score float64, payload map[string]any) Result {
	r := Result{ID: id, Score: score}
	if doc, ok := payload["document"].(string); ok {
		r.Content = doc
	}
	if meta, ok := payload["metadata"].(map[string]any); ok {
		r.Metadata = meta
	}
	return r
}

// matchesFilter reports whether metadata satisfies every filter value.
func matchesFilter(metadata map[string]any, filter Filter) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares payload values. Numbers compare by value because
// serialization shifts their concrete type (an int stored through JSON
// comes back float64).
func valuesEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, bok := asFloat(b)
		return bok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
