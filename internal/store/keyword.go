package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

const (
	textAnalyzerName = "text_lowercase"
	keywordSuffix    = ".bleve"
)

// KeywordHit is one BM25 match from the sidecar index.
type KeywordHit struct {
	ID      string
	Score   float64
	Content string
}

// keywordDocument is the shape bleve indexes. Content carries the chunk
// text; Project is indexed verbatim so it can be filtered exactly.
type keywordDocument struct {
	Content string `json:"content"`
	Project string `json:"project"`
}

// KeywordIndex maintains one bleve index per collection next to the
// vector data, giving hybrid search its exact-term leg. An empty dir
// keeps the indexes in memory.
type KeywordIndex struct {
	mu      sync.Mutex
	dir     string
	indexes map[string]bleve.Index
	closed  bool
}

// NewKeywordIndex opens the sidecar rooted at dir. Collection indexes
// are opened lazily on first use.
func NewKeywordIndex(dir string) *KeywordIndex {
	return &KeywordIndex{dir: dir, indexes: make(map[string]bleve.Index)}
}

func keywordIndexMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(textAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, synerrors.InternalError("building keyword analyzer", err)
	}
	m.DefaultAnalyzer = textAnalyzerName

	content := bleve.NewTextFieldMapping()
	content.Analyzer = textAnalyzerName
	content.Store = true

	project := bleve.NewTextFieldMapping()
	project.Analyzer = keyword.Name
	project.Store = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("project", project)
	m.DefaultMapping = doc

	return m, nil
}

// Ingest indexes the entries' content into the collection's sidecar,
// replacing documents that share an id.
func (k *KeywordIndex) Ingest(ctx context.Context, collection string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errKeywordClosed()
	}

	idx, err := k.openLocked(collection)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, e := range entries {
		doc := keywordDocument{
			Content: e.Content,
			Project: metadataString(e.Metadata, "project"),
		}
		if err := batch.Index(e.ID, doc); err != nil {
			return synerrors.New(synerrors.ErrCodeIndexFailed,
				fmt.Sprintf("indexing document %s", e.ID), err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return synerrors.New(synerrors.ErrCodeIndexFailed, "writing keyword batch", err)
	}
	return nil
}

// Search runs a BM25 match over chunk content. A non-empty project
// restricts hits to that project; a blank query or a collection that was
// never indexed returns no hits.
func (k *KeywordIndex) Search(ctx context.Context, collection, queryText string, limit int, project string) ([]KeywordHit, error) {
	if strings.TrimSpace(queryText) == "" {
		return []KeywordHit{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil, errKeywordClosed()
	}
	idx, ok := k.indexes[collection]
	if !ok && !k.existsOnDisk(collection) {
		k.mu.Unlock()
		return []KeywordHit{}, nil
	}
	if !ok {
		var err error
		idx, err = k.openLocked(collection)
		if err != nil {
			k.mu.Unlock()
			return nil, err
		}
	}
	k.mu.Unlock()

	match := bleve.NewMatchQuery(queryText)
	match.SetField("content")

	req := bleve.NewSearchRequest(match)
	if project != "" {
		term := bleve.NewTermQuery(project)
		term.SetField("project")
		req = bleve.NewSearchRequest(bleve.NewConjunctionQuery(match, term))
	}
	req.Size = limit
	req.Fields = []string{"content"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, synerrors.New(synerrors.ErrCodeSearchFailed, "keyword search", err)
	}

	hits := make([]KeywordHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		content, _ := hit.Fields["content"].(string)
		hits = append(hits, KeywordHit{ID: hit.ID, Score: hit.Score, Content: content})
	}
	return hits, nil
}

// Delete removes documents by id. Unknown ids and collections that were
// never indexed are ignored.
func (k *KeywordIndex) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errKeywordClosed()
	}

	if _, ok := k.indexes[collection]; !ok && !k.existsOnDisk(collection) {
		return nil
	}
	idx, err := k.openLocked(collection)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := idx.Batch(batch); err != nil {
		return synerrors.New(synerrors.ErrCodeIndexFailed, "deleting keyword batch", err)
	}
	return nil
}

// DeleteCollection removes the collection's sidecar index. Missing
// collections are ignored.
func (k *KeywordIndex) DeleteCollection(ctx context.Context, collection string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errKeywordClosed()
	}

	if idx, ok := k.indexes[collection]; ok {
		delete(k.indexes, collection)
		if err := idx.Close(); err != nil {
			return synerrors.InternalError(
				fmt.Sprintf("closing keyword index for %s", collection), err)
		}
	}
	if k.dir == "" {
		return nil
	}
	path := k.indexPath(collection)
	if err := os.RemoveAll(path); err != nil {
		return synerrors.InternalError(fmt.Sprintf("removing keyword index %s", path), err)
	}
	return nil
}

// Close closes every open index and rejects further calls.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true

	var firstErr error
	for name, idx := range k.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = synerrors.InternalError(
				fmt.Sprintf("closing keyword index for %s", name), err)
		}
	}
	k.indexes = nil
	return firstErr
}

func (k *KeywordIndex) indexPath(collection string) string {
	return filepath.Join(k.dir, escapeCollection(collection)+keywordSuffix)
}

func (k *KeywordIndex) existsOnDisk(collection string) bool {
	if k.dir == "" {
		return false
	}
	_, err := os.Stat(k.indexPath(collection))
	return err == nil
}

// openLocked returns the collection's index, opening or creating it.
// Caller holds the lock.
func (k *KeywordIndex) openLocked(collection string) (bleve.Index, error) {
	if idx, ok := k.indexes[collection]; ok {
		return idx, nil
	}

	m, err := keywordIndexMapping()
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if k.dir == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if err := os.MkdirAll(k.dir, 0o755); err != nil {
			return nil, synerrors.ConfigError(
				fmt.Sprintf("cannot create keyword index directory %s", k.dir), err)
		}
		path := k.indexPath(collection)
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		} else if err != nil {
			// The sidecar is rebuilt by reindexing; a damaged index is
			// cleared and recreated rather than surfaced.
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, synerrors.InternalError(
					fmt.Sprintf("clearing damaged keyword index %s", path), removeErr)
			}
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, synerrors.New(synerrors.ErrCodeIndexFailed,
			fmt.Sprintf("opening keyword index for %s", collection), err)
	}

	k.indexes[collection] = idx
	return idx, nil
}

func errKeywordClosed() error {
	return synerrors.New(synerrors.ErrCodeStoreClosed, "keyword index is closed", nil)
}

func metadataString(md map[string]any, key string) string {
	s, _ := md[key].(string)
	return s
}
