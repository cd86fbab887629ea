package match

import "strings"

// closingTokens are end-of-block lines treated as interchangeable: models
// routinely confuse which closer a block ends on.
var closingTokens = map[string]bool{
	"}":   true,
	"};":  true,
	")":   true,
	");":  true,
	"]":   true,
	"];":  true,
	"end": true,
}

// trimPenalty is subtracted from the confidence for each expected line
// dropped by the ladder.
const trimPenalty = 0.05

// TrimLadder is the line-anchored structural matcher. Unlike the window
// scorer it walks line by line, skipping blank lines the document has
// but the block does not, and treats closing tokens as interchangeable.
// When the full block does not land anywhere, it progressively trims
// leading and trailing lines off the expected block and retries, at a
// confidence penalty per trimmed line.
type TrimLadder struct{}

func (TrimLadder) Name() string { return "trim" }

func (TrimLadder) Locate(doc, expected []string, rng *Range) (Result, bool) {
	if r, ok, handled := degenerate(doc, expected); handled {
		return r, ok
	}

	best := Result{StartLine: -1, EndLine: -1}
	maxTrim := len(expected) - 1
	if maxTrim > 4 {
		maxTrim = 4
	}

	for trim := 0; trim <= maxTrim; trim++ {
		for lead := 0; lead <= trim; lead++ {
			trail := trim - lead
			sub := expected[lead : len(expected)-trail]
			r, found := locateAnchored(doc, sub, rng)
			if !found {
				continue
			}
			r.TrimmedLeading = lead
			r.TrimmedTrailing = trail
			r.Confidence -= trimPenalty * float64(trim)
			if r.Confidence < 0 {
				r.Confidence = 0
			}
			if r.Confidence > best.Confidence {
				best = r
			}
		}
		// A full-width match beats any trimmed retry of the same score
		if best.Confidence > Threshold {
			return best, true
		}
	}

	return best, best.Confidence > Threshold
}

// locateAnchored tries every start offset in range and keeps the first
// best anchored walk.
func locateAnchored(doc, sub []string, rng *Range) (Result, bool) {
	start, end := clampRange(rng, len(doc))

	best := Result{StartLine: -1, EndLine: -1}
	for i := start; i < end; i++ {
		matchStart, matchEnd, conf, ok := anchoredAt(doc, i, end, sub)
		if !ok {
			continue
		}
		if conf > best.Confidence {
			best = Result{StartLine: matchStart, EndLine: matchEnd, Confidence: conf}
			if conf == 1.0 {
				break
			}
		}
	}
	return best, best.StartLine >= 0
}

// anchoredAt walks sub against doc starting at offset start. Blank
// document lines not present in the block are skipped for free; every
// block line must land on a scoring document line or the walk fails.
// Returns the [start, end) document span actually consumed: leading
// blanks skipped before the first block line stay outside the span.
func anchoredAt(doc []string, start, limit int, sub []string) (int, int, float64, bool) {
	di := start
	spanStart := -1
	total := 0.0

	for _, want := range sub {
		if strings.TrimSpace(want) != "" {
			for di < limit && strings.TrimSpace(doc[di]) == "" {
				di++
			}
		}
		if di >= limit {
			return 0, 0, 0, false
		}

		s := lineScore(doc[di], want)
		if s == 0 && interchangeableClosers(doc[di], want) {
			s = 0.9
		}
		if s == 0 {
			return 0, 0, 0, false
		}
		if spanStart < 0 {
			spanStart = di
		}
		total += s
		di++
	}

	return spanStart, di, total / float64(len(sub)), true
}

// interchangeableClosers reports whether both lines are closing tokens.
func interchangeableClosers(a, b string) bool {
	return closingTokens[strings.TrimSpace(a)] && closingTokens[strings.TrimSpace(b)]
}
