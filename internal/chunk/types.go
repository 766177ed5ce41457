// Package chunk splits raw text into bounded, overlapping segments along
// semantic separators. Splitting is a pure function of its input: the same
// text and spec always produce the same segments, which keeps downstream
// identifiers stable across runs.
package chunk

import (
	"fmt"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

const (
	// DefaultMaxSize is the maximum segment length in characters,
	// overlap included.
	DefaultMaxSize = 1000

	// DefaultOverlap is the number of characters repeated from the tail
	// of one segment at the head of the next.
	DefaultOverlap = 200
)

// DefaultSeparators returns the boundary strings tried from most to least
// specific: paragraph, line, sentence, clause, word.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", ". ", ", ", " "}
}

// Spec configures how text is split.
type Spec struct {
	// MaxSize is the maximum segment length in characters, overlap
	// included.
	MaxSize int

	// Overlap is the number of trailing characters of each segment
	// repeated at the head of the one that follows.
	Overlap int

	// Separators are boundary strings tried from most to least specific.
	// Empty strings are skipped.
	Separators []string
}

// DefaultSpec returns the spec used when configuration does not override it.
func DefaultSpec() Spec {
	return Spec{
		MaxSize:    DefaultMaxSize,
		Overlap:    DefaultOverlap,
		Separators: DefaultSeparators(),
	}
}

// Validate rejects specs that cannot terminate. An overlap as large as the
// segment size would re-emit the same characters forever.
func (s Spec) Validate() error {
	if s.MaxSize <= 0 {
		return synerrors.New(synerrors.ErrCodeChunkSpecInvalid,
			fmt.Sprintf("max segment size must be positive, got %d", s.MaxSize), nil)
	}
	if s.Overlap < 0 {
		return synerrors.New(synerrors.ErrCodeChunkSpecInvalid,
			fmt.Sprintf("overlap must be non-negative, got %d", s.Overlap), nil)
	}
	if s.Overlap >= s.MaxSize {
		return synerrors.New(synerrors.ErrCodeChunkSpecInvalid,
			fmt.Sprintf("overlap (%d) must be smaller than max segment size (%d)",
				s.Overlap, s.MaxSize), nil)
	}
	return nil
}

// Segment is one bounded piece of a source document.
type Segment struct {
	// Text is the segment content. Segments after the first begin with up
	// to Overlap characters repeated from the end of the previous segment.
	Text string

	// Start is the offset of Text within the original input, counted in
	// characters.
	Start int
}
