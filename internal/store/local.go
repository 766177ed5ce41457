package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/coder/hnsw"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/ids"
)

const snapshotSuffix = ".gob"

// localCollection holds one collection in memory. The graph accelerates
// unfiltered queries; entries remain the source of truth for scoring.
type localCollection struct {
	dims    int
	graph   *hnsw.Graph[uint64]
	entries map[uint64]Entry
}

// LocalStore keeps collections in process memory with an HNSW graph per
// collection, snapshotted to disk after each mutation. It serves setups
// where no Qdrant server is reachable.
type LocalStore struct {
	mu     sync.RWMutex
	dir    string
	colls  map[string]*localCollection
	closed bool
}

var _ Store = (*LocalStore)(nil)

// localSnapshot is the on-disk form of a collection. The graph is not
// persisted; it is rebuilt from the entries at load.
type localSnapshot struct {
	Name    string
	Dims    int
	Entries map[uint64]Entry
}

// NewLocalStore opens the store rooted at dir, loading any snapshots
// found there. An empty dir keeps everything in memory.
func NewLocalStore(dir string) (*LocalStore, error) {
	s := &LocalStore{dir: dir, colls: make(map[string]*localCollection)}
	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, synerrors.ConfigError(
			fmt.Sprintf("cannot create local store directory %s", dir), err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, synerrors.ConfigError(
			fmt.Sprintf("cannot read local store directory %s", dir), err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), snapshotSuffix) {
			continue
		}
		if err := s.loadSnapshot(filepath.Join(dir, f.Name())); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *LocalStore) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return synerrors.InternalError(fmt.Sprintf("opening snapshot %s", path), err)
	}
	defer func() { _ = f.Close() }()

	var snap localSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return synerrors.InternalError(fmt.Sprintf("loading snapshot %s", path), err).
			WithSuggestion("remove the file and reindex the project")
	}

	coll := &localCollection{
		dims:    snap.Dims,
		graph:   newSearchGraph(),
		entries: snap.Entries,
	}
	if coll.entries == nil {
		coll.entries = make(map[uint64]Entry)
	}
	for key, e := range coll.entries {
		coll.graph.Add(hnsw.MakeNode(key, e.Vector))
	}
	s.colls[snap.Name] = coll
	return nil
}

// newSearchGraph builds a cosine HNSW graph with the parameters used
// throughout this package.
func newSearchGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.Ml = 0.25
	g.EfSearch = 20
	return g
}

// Ensure creates the collection or verifies its dimension.
func (s *LocalStore) Ensure(ctx context.Context, collection string, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errLocalClosed()
	}

	if coll, ok := s.colls[collection]; ok {
		if coll.dims != dims {
			return dimensionMismatch(collection, coll.dims, dims)
		}
		return nil
	}

	s.colls[collection] = &localCollection{
		dims:    dims,
		graph:   newSearchGraph(),
		entries: make(map[uint64]Entry),
	}
	return s.save(collection)
}

// Upsert stores entries, replacing any previous entry with the same id.
// A collection that does not exist yet takes its dimension from the
// first vector.
func (s *LocalStore) Upsert(ctx context.Context, collection string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errLocalClosed()
	}

	coll, ok := s.colls[collection]
	if !ok {
		dims := len(entries[0].Vector)
		if dims == 0 {
			return synerrors.New(synerrors.ErrCodeDimensionMismatch,
				"cannot size a collection from an empty vector", nil)
		}
		coll = &localCollection{
			dims:    dims,
			graph:   newSearchGraph(),
			entries: make(map[uint64]Entry),
		}
		s.colls[collection] = coll
	}

	for _, e := range entries {
		if len(e.Vector) != coll.dims {
			return dimensionMismatch(collection, coll.dims, len(e.Vector)).
				WithDetail("id", e.ID)
		}
		key, err := ids.Numeric(e.ID)
		if err != nil {
			return err
		}
		stored := e
		stored.Vector = normalized(e.Vector)
		coll.entries[key] = stored
		coll.graph.Add(hnsw.MakeNode(key, stored.Vector))
	}
	return s.save(collection)
}

// Delete removes entries by id. The graph keeps its nodes lazily;
// Search drops hits with no backing entry, so deleted ids stop
// appearing and Count stays exact.
func (s *LocalStore) Delete(ctx context.Context, collection string, entryIDs []string) error {
	if len(entryIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errLocalClosed()
	}

	coll, ok := s.colls[collection]
	if !ok {
		return nil
	}
	for _, id := range entryIDs {
		key, err := ids.Numeric(id)
		if err != nil {
			return err
		}
		delete(coll.entries, key)
	}
	return s.save(collection)
}

// Search returns the closest entries by cosine similarity. Filtered
// queries scan the collection exactly; unfiltered ones go through the
// graph and are re-scored against the stored entries.
func (s *LocalStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errLocalClosed()
	}

	coll, ok := s.colls[collection]
	if !ok {
		return []Result{}, nil
	}
	if len(vector) != coll.dims {
		return nil, dimensionMismatch(collection, coll.dims, len(vector))
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if len(coll.entries) == 0 {
		return []Result{}, nil
	}

	query := normalized(vector)

	var results []Result
	if len(filter) > 0 {
		results = make([]Result, 0)
		for _, e := range coll.entries {
			if !matchesFilter(e.Metadata, filter) {
				continue
			}
			results = append(results, scoredResult(query, e))
		}
	} else {
		k := limit
		if k > len(coll.entries) {
			k = len(coll.entries)
		}
		nodes := coll.graph.Search(query, k)
		results = make([]Result, 0, len(nodes))
		seen := make(map[uint64]bool, len(nodes))
		for _, node := range nodes {
			e, ok := coll.entries[node.Key]
			if !ok || seen[node.Key] {
				continue
			}
			seen[node.Key] = true
			results = append(results, scoredResult(query, e))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ListCollections returns the collection names, sorted.
func (s *LocalStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errLocalClosed()
	}

	names := make([]string, 0, len(s.colls))
	for name := range s.colls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteCollection drops the collection and its snapshot. Deleting a
// missing collection is not an error.
func (s *LocalStore) DeleteCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errLocalClosed()
	}

	delete(s.colls, collection)
	if s.dir == "" {
		return nil
	}
	path := filepath.Join(s.dir, snapshotFileName(collection))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return synerrors.InternalError(fmt.Sprintf("removing snapshot %s", path), err)
	}
	return nil
}

// Count returns the number of entries. A missing collection counts zero.
func (s *LocalStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errLocalClosed()
	}

	coll, ok := s.colls[collection]
	if !ok {
		return 0, nil
	}
	return len(coll.entries), nil
}

// Close rejects further calls. Snapshots are written on every mutation,
// so there is nothing left to flush.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// save writes the collection snapshot atomically. Caller holds the lock.
func (s *LocalStore) save(collection string) error {
	if s.dir == "" {
		return nil
	}
	coll := s.colls[collection]

	path := filepath.Join(s.dir, snapshotFileName(collection))
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return synerrors.InternalError(fmt.Sprintf("creating snapshot %s", tmp), err)
	}

	snap := localSnapshot{Name: collection, Dims: coll.dims, Entries: coll.entries}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return synerrors.InternalError(fmt.Sprintf("writing snapshot %s", tmp), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return synerrors.InternalError(fmt.Sprintf("writing snapshot %s", tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return synerrors.InternalError(fmt.Sprintf("replacing snapshot %s", path), err)
	}
	return nil
}

func snapshotFileName(collection string) string {
	return escapeCollection(collection) + snapshotSuffix
}

// escapeCollection maps a collection name onto a single filesystem-safe
// path segment. Bytes outside the safe set are percent-encoded so two
// distinct names never share a file.
func escapeCollection(collection string) string {
	var b strings.Builder
	for i := 0; i < len(collection); i++ {
		c := collection[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func scoredResult(query []float32, e Entry) Result {
	return Result{
		ID:       e.ID,
		Score:    dotProduct(query, e.Vector),
		Content:  e.Content,
		Metadata: e.Metadata,
	}
}

func dimensionMismatch(collection string, have, got int) *synerrors.SynapError {
	return synerrors.New(synerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("collection %q stores %d-dimensional vectors, got %d",
			collection, have, got), nil)
}

func errLocalClosed() error {
	return synerrors.New(synerrors.ErrCodeStoreClosed, "local store is closed", nil)
}

// normalized returns a unit-length copy. Zero vectors come back
// unchanged so unembeddable content stays storable.
func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i := range out {
		out[i] = float32(float64(out[i]) * inv)
	}
	return out
}

// dotProduct of two equal-length unit vectors is their cosine
// similarity, matching the score Qdrant reports for cosine collections.
func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
