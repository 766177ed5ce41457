// Package search answers queries over indexed collections. It embeds the
// query for the semantic leg, consults the keyword sidecar for the exact
// leg, and fuses both with reciprocal rank fusion.
package search

import (
	"fmt"
	"strings"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// Mode selects which retrieval legs run.
type Mode string

const (
	// ModeSemantic searches by embedding similarity only.
	ModeSemantic Mode = "semantic"
	// ModeKeyword searches the BM25 sidecar only.
	ModeKeyword Mode = "keyword"
	// ModeHybrid runs both legs and fuses them. The default.
	ModeHybrid Mode = "hybrid"
)

// ParseMode maps a user-supplied mode string onto a Mode. Empty means
// hybrid.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeHybrid):
		return ModeHybrid, nil
	case string(ModeSemantic):
		return ModeSemantic, nil
	case string(ModeKeyword):
		return ModeKeyword, nil
	default:
		return "", synerrors.ConfigError(fmt.Sprintf("unknown search mode %q", s), nil).
			WithSuggestion(`use "semantic", "keyword" or "hybrid"`)
	}
}

// Request describes one query.
type Request struct {
	// Query is the free-text query.
	Query string
	// Collection to search.
	Collection string
	// Limit caps the number of hits. Non-positive means the default.
	Limit int
	// Project restricts hits to one project when non-empty.
	Project string
	// Mode selects the retrieval legs. Empty means hybrid.
	Mode Mode
}

// Hit is one ranked result. Hits from the keyword leg alone carry no
// metadata; the vector store is the only source of payloads.
type Hit struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}
