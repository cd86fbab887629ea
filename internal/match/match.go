// Package match locates an expected block of lines inside a document and
// scores how well it fits.
//
// Two strategies exist: the confidence-weighted sliding window (default)
// and an adaptive trim ladder that tolerates blank-line insertion and
// drifted block boundaries. Both report a normalized confidence in [0,1];
// a located span is accepted only above Threshold.
package match

import (
	"strings"
	"unicode"
)

// Threshold is the minimum confidence for a span to be accepted.
const Threshold = 0.85

// Result describes the best-scoring span found for an expected block.
// StartLine/EndLine are a half-open [start, end) line range.
type Result struct {
	StartLine       int
	EndLine         int
	Confidence      float64
	TrimmedLeading  int // expected lines dropped from the front (trim ladder)
	TrimmedTrailing int // expected lines dropped from the back (trim ladder)
}

// Range restricts the search to document lines [Start, End).
// It is clamped to the document bounds before use.
type Range struct {
	Start int
	End   int
}

// Strategy locates expected inside doc. The second return is true when
// the best span clears Threshold; the Result always carries the best
// score found so callers can classify a failure.
type Strategy interface {
	Locate(doc, expected []string, rng *Range) (Result, bool)
	Name() string
}

// ForName returns the strategy registered under the config name.
// Unknown names fall back to the window scorer.
func ForName(name string) Strategy {
	if name == "trim" {
		return TrimLadder{}
	}
	return WindowScorer{}
}

// emptyDoc reports whether the document is empty for matching purposes.
// A document holding a single empty line counts: editors represent a new
// file that way.
func emptyDoc(doc []string) bool {
	return len(doc) == 0 || (len(doc) == 1 && doc[0] == "")
}

// degenerate handles the two special cases shared by all strategies:
// an empty document always matches at zero with full confidence (pure
// insertion), and empty expected lines against a non-empty document is
// a hard failure (nothing to search for).
func degenerate(doc, expected []string) (Result, bool, bool) {
	if emptyDoc(doc) {
		return Result{StartLine: 0, EndLine: 0, Confidence: 1.0}, true, true
	}
	if len(expected) == 0 {
		return Result{}, false, true
	}
	return Result{}, false, false
}

// clampRange converts an optional range to concrete [start, end) bounds.
func clampRange(rng *Range, docLen int) (int, int) {
	start, end := 0, docLen
	if rng != nil {
		start, end = rng.Start, rng.End
	}
	if start < 0 {
		start = 0
	}
	if end > docLen {
		end = docLen
	}
	if start > end {
		start = end
	}
	return start, end
}

// stripSpace removes every whitespace rune from the line.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// lineScore rates how well a document line matches an expected line:
// 1.0 byte-identical, 1.0 both blank, 0.9 equal ignoring whitespace,
// 0 otherwise.
func lineScore(got, want string) float64 {
	if got == want {
		return 1.0
	}
	gotStripped := stripSpace(got)
	wantStripped := stripSpace(want)
	if gotStripped == "" && wantStripped == "" {
		return 1.0
	}
	if gotStripped == wantStripped {
		return 0.9
	}
	return 0.0
}

// WindowScorer slides a window of len(expected) lines over the document
// and averages per-line scores. Ties keep the first offset found. It
// treats the block as a unit: insertions or deletions inside the window
// sink the whole candidate.
type WindowScorer struct{}

func (WindowScorer) Name() string { return "window" }

func (WindowScorer) Locate(doc, expected []string, rng *Range) (Result, bool) {
	if r, ok, handled := degenerate(doc, expected); handled {
		return r, ok
	}

	start, end := clampRange(rng, len(doc))
	n := len(expected)

	best := Result{StartLine: -1, EndLine: -1}
	for i := start; i+n <= end; i++ {
		total := 0.0
		for j, want := range expected {
			total += lineScore(doc[i+j], want)
		}
		conf := total / float64(n)
		if conf > best.Confidence {
			best = Result{StartLine: i, EndLine: i + n, Confidence: conf}
			if conf == 1.0 {
				break
			}
		}
	}

	return best, best.Confidence > Threshold
}
