package patch

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/youruser/sled/internal/match"
)

// DiffSpan is a character-level region of the replacement, used by the
// editor to refine highlight boundaries inside the replaced range.
// Op is "eq", "add", or "del".
type DiffSpan struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// Outcome reports what happened to one block.
type Outcome struct {
	Applied    bool
	Confidence float64
	// StartLine/EndLine are the half-open range the replacement now
	// occupies in the mutated document. Every line in it is an "added"
	// region for visual-diff rendering.
	StartLine int
	EndLine   int
	Spans     []DiffSpan
}

// Apply replaces the located span with the replacement lines in one
// mutation. The first application in a transaction captures the rollback
// snapshot. A match below the acceptance threshold is rejected without
// touching the document; the score is reported either way.
func Apply(doc Document, tx *Transaction, m match.Result, replacement []string) Outcome {
	if m.StartLine < 0 || m.Confidence <= match.Threshold {
		return Outcome{Applied: false, Confidence: m.Confidence}
	}

	tx.Snapshot(doc)

	// Pure insertion into a new file: editors represent an empty buffer
	// as one empty line, which the replacement supersedes.
	end := m.EndLine
	if m.StartLine == 0 && end == 0 && doc.LineCount() == 1 && doc.Lines()[0] == "" {
		end = 1
	}

	removed := doc.Lines()[m.StartLine:end]
	doc.Replace(m.StartLine, end, replacement)

	tx.AppliedBlocks++
	if m.Confidence < tx.MinConfidence {
		tx.MinConfidence = m.Confidence
	}

	return Outcome{
		Applied:    true,
		Confidence: m.Confidence,
		StartLine:  m.StartLine,
		EndLine:    m.StartLine + len(replacement),
		Spans:      diffSpans(removed, replacement),
	}
}

// diffSpans computes character-level spans between the removed and
// inserted text. Presentation only: the editor uses them to tighten the
// added-region highlight.
func diffSpans(removed, inserted []string) []DiffSpan {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(strings.Join(removed, "\n"), strings.Join(inserted, "\n"), false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	spans := make([]DiffSpan, 0, len(diffs))
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			spans = append(spans, DiffSpan{Op: "eq", Text: d.Text})
		case diffmatchpatch.DiffInsert:
			spans = append(spans, DiffSpan{Op: "add", Text: d.Text})
		case diffmatchpatch.DiffDelete:
			spans = append(spans, DiffSpan{Op: "del", Text: d.Text})
		}
	}
	return spans
}
