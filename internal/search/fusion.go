package search

import (
	"sort"

	"github.com/casheiro/synapstor-go/internal/store"
)

// DefaultRRFConstant is the reciprocal rank fusion smoothing parameter.
// k=60 is the standard value across search systems.
const DefaultRRFConstant = 60

// fuse merges the semantic and keyword lists with reciprocal rank
// fusion: score(d) = Σ 1/(k+rank) over the lists d appears in, ranks
// 1-indexed. Scores are scaled so the top hit is 1. Payload fields come
// from the vector leg when both saw the document.
func fuse(vec []store.Result, kw []store.KeywordHit, k int) []Hit {
	if len(vec) == 0 && len(kw) == 0 {
		return []Hit{}
	}
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type fused struct {
		hit     Hit
		inBoth  bool
		kwScore float64
	}
	merged := make(map[string]*fused, len(vec)+len(kw))

	for rank, r := range vec {
		merged[r.ID] = &fused{hit: Hit{
			ID:       r.ID,
			Score:    1 / float64(k+rank+1),
			Content:  r.Content,
			Metadata: r.Metadata,
		}}
	}
	for rank, h := range kw {
		f, ok := merged[h.ID]
		if !ok {
			f = &fused{hit: Hit{ID: h.ID, Content: h.Content}}
			merged[h.ID] = f
		} else {
			f.inBoth = true
		}
		f.kwScore = h.Score
		f.hit.Score += 1 / float64(k+rank+1)
	}

	ordered := make([]*fused, 0, len(merged))
	for _, f := range merged {
		ordered = append(ordered, f)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.hit.Score != b.hit.Score {
			return a.hit.Score > b.hit.Score
		}
		if a.inBoth != b.inBoth {
			return a.inBoth
		}
		if a.kwScore != b.kwScore {
			return a.kwScore > b.kwScore
		}
		return a.hit.ID < b.hit.ID
	})

	// Every document contributed at least one positive term, so the top
	// score is never zero.
	top := ordered[0].hit.Score
	hits := make([]Hit, 0, len(ordered))
	for _, f := range ordered {
		f.hit.Score /= top
		hits = append(hits, f.hit)
	}
	return hits
}
