package chunk

import (
	"strings"
	"unicode/utf8"
)

// window is the half-open character range [start, end) a segment owns in
// the original text, before any overlap is prepended.
type window struct {
	start int
	end   int
}

// Split cuts text into ordered segments of at most spec.MaxSize characters.
// It splits on the most specific separator whose pieces all fit, falling
// back separator by separator, and hard-cuts at fixed offsets when none
// does. Each segment after the first repeats the last spec.Overlap
// characters of its predecessor so context survives the boundary. Empty
// input yields no segments; input within spec.MaxSize yields a single
// segment with no overlap.
func Split(text string, spec Spec) ([]Segment, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= spec.MaxSize {
		return []Segment{{Text: text, Start: 0}}, nil
	}

	// Reserve room for the prepended overlap so a full window still fits
	// MaxSize once the carried characters are added.
	budget := spec.MaxSize - spec.Overlap

	windows := separatorWindows(text, budget, spec.Separators)
	if windows == nil {
		windows = hardCutWindows(len(runes), budget)
	}

	segments := make([]Segment, 0, len(windows))
	for i, w := range windows {
		start := w.start
		if i > 0 {
			start -= spec.Overlap
			if start < 0 {
				start = 0
			}
		}
		segments = append(segments, Segment{Text: string(runes[start:w.end]), Start: start})
	}
	return segments, nil
}

// separatorWindows picks the most specific separator whose pieces all fit
// within budget and packs adjacent pieces into maximal windows. Returns nil
// when no separator qualifies.
func separatorWindows(text string, budget int, separators []string) []window {
	for _, sep := range separators {
		if sep == "" {
			continue
		}
		pieces := splitAfter(text, sep)
		if piecesFit(pieces, budget) {
			return packPieces(pieces, budget)
		}
	}
	return nil
}

// splitAfter splits text on sep, keeping the separator attached to the
// preceding piece so no character is lost.
func splitAfter(text, sep string) []string {
	pieces := strings.SplitAfter(text, sep)
	if n := len(pieces); pieces[n-1] == "" {
		pieces = pieces[:n-1]
	}
	return pieces
}

func piecesFit(pieces []string, budget int) bool {
	for _, p := range pieces {
		if utf8.RuneCountInString(p) > budget {
			return false
		}
	}
	return true
}

// packPieces merges adjacent pieces into the largest windows that stay
// within budget. Offsets are counted in characters.
func packPieces(pieces []string, budget int) []window {
	var windows []window
	start, length := 0, 0
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if length > 0 && length+n > budget {
			windows = append(windows, window{start: start, end: start + length})
			start += length
			length = 0
		}
		length += n
	}
	if length > 0 {
		windows = append(windows, window{start: start, end: start + length})
	}
	return windows
}

// hardCutWindows slices fixed character ranges for text that no separator
// could break into small enough pieces.
func hardCutWindows(total, budget int) []window {
	windows := make([]window, 0, (total+budget-1)/budget)
	for start := 0; start < total; start += budget {
		end := start + budget
		if end > total {
			end = total
		}
		windows = append(windows, window{start: start, end: end})
	}
	return windows
}
