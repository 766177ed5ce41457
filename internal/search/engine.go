package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/casheiro/synapstor-go/internal/embed"
	synerrors "github.com/casheiro/synapstor-go/internal/errors"
	"github.com/casheiro/synapstor-go/internal/store"
)

// Engine runs queries against one vector store and, when present, its
// keyword sidecar.
type Engine struct {
	embedder embed.Provider
	store    store.Store
	keyword  *store.KeywordIndex
	rrfK     int
}

// Option adjusts an Engine at construction.
type Option func(*Engine)

// WithRRFConstant overrides the fusion smoothing parameter used in
// hybrid mode. Non-positive values keep the default.
func WithRRFConstant(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.rrfK = k
		}
	}
}

// NewEngine wires the search dependencies. The keyword index may be nil,
// in which case keyword mode is unavailable and hybrid degrades to
// semantic.
func NewEngine(embedder embed.Provider, st store.Store, keyword *store.KeywordIndex, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, synerrors.New(synerrors.ErrCodeMissingParameter,
			"embedding provider is required", nil)
	}
	if st == nil {
		return nil, synerrors.New(synerrors.ErrCodeMissingParameter,
			"vector store is required", nil)
	}
	e := &Engine{
		embedder: embedder,
		store:    st,
		keyword:  keyword,
		rrfK:     DefaultRRFConstant,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes the request. A blank query or an empty collection of
// results yields an empty slice, never an error.
func (e *Engine) Search(ctx context.Context, req Request) ([]Hit, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return []Hit{}, nil
	}
	if req.Collection == "" {
		return nil, synerrors.New(synerrors.ErrCodeMissingParameter,
			"collection is required", nil)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	if e.keyword == nil {
		switch mode {
		case ModeKeyword:
			return nil, synerrors.ConfigError("keyword search is disabled", nil).
				WithSuggestion("unset store.disable_keyword and reindex")
		case ModeHybrid:
			mode = ModeSemantic
		}
	}

	switch mode {
	case ModeSemantic:
		return e.semantic(ctx, query, req.Collection, limit, req.Project)
	case ModeKeyword:
		return e.keywordOnly(ctx, query, req.Collection, limit, req.Project)
	case ModeHybrid:
		return e.hybrid(ctx, query, req.Collection, limit, req.Project)
	default:
		return nil, synerrors.ConfigError(fmt.Sprintf("unknown search mode %q", mode), nil).
			WithSuggestion(`use "semantic", "keyword" or "hybrid"`)
	}
}

func (e *Engine) semantic(ctx context.Context, query, collection string, limit int, project string) ([]Hit, error) {
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := e.store.Search(ctx, collection, vector, limit, projectFilter(project))
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{ID: r.ID, Score: r.Score, Content: r.Content, Metadata: r.Metadata})
	}
	return hits, nil
}

func (e *Engine) keywordOnly(ctx context.Context, query, collection string, limit int, project string) ([]Hit, error) {
	kwHits, err := e.keyword.Search(ctx, collection, query, limit, project)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(kwHits))
	for _, h := range kwHits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score, Content: h.Content})
	}
	return hits, nil
}

// hybrid runs both legs in parallel. One failed leg degrades to the
// other's results; only both failing surfaces an error.
func (e *Engine) hybrid(ctx context.Context, query, collection string, limit int, project string) ([]Hit, error) {
	// Over-fetch both legs so fusion sees past the cut-off.
	fetch := limit * 2

	g, gctx := errgroup.WithContext(ctx)
	var (
		vecResults []store.Result
		vecErr     error
		kwHits     []store.KeywordHit
		kwErr      error
	)

	g.Go(func() error {
		vector, err := e.embedder.EmbedQuery(gctx, query)
		if err != nil {
			vecErr = err
			return nil
		}
		vecResults, vecErr = e.store.Search(gctx, collection, vector, fetch, projectFilter(project))
		return nil
	})
	g.Go(func() error {
		kwHits, kwErr = e.keyword.Search(gctx, collection, query, fetch, project)
		return nil
	})
	_ = g.Wait()

	if vecErr != nil && kwErr != nil {
		return nil, vecErr
	}
	if vecErr != nil {
		slog.Warn("semantic leg failed, serving keyword results",
			slog.String("error", vecErr.Error()))
	}
	if kwErr != nil {
		slog.Warn("keyword leg failed, serving semantic results",
			slog.String("error", kwErr.Error()))
	}

	hits := fuse(vecResults, kwHits, e.rrfK)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func projectFilter(project string) store.Filter {
	if project == "" {
		return nil
	}
	return store.Filter{"project": project}
}
