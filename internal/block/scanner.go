// Package block recognizes edit-block records inside decoded model output.
//
// Two formats are recognized: SEARCH/REPLACE marker blocks and diff-style
// hunks. Both produce the same Block value so downstream matching and
// application share one path.
package block

import "strings"

// Marker literals for the search/replace format. Exact, case-sensitive.
const (
	MarkerSearch  = "<<<< SEARCH"
	MarkerReplace = "==== REPLACE"
	MarkerEnd     = ">>>> END"
)

// OpKind classifies one hunk line.
type OpKind int

const (
	OpContext OpKind = iota
	OpAdd
	OpDelete
)

// Op is one line of a hunk-format block.
type Op struct {
	Kind OpKind
	Text string
}

// Block is one complete edit instruction: the lines the model expects to
// find and the lines to put in their place. Ops is non-nil for blocks
// scanned from the hunk format; Expected/Replacement are always populated.
type Block struct {
	Expected    []string
	Replacement []string
	Ops         []Op
}

type state int

const (
	idle state = iota
	capturingExpected
	capturingReplacement
	capturingHunk
)

// Scanner is a line state machine over the decoded text stream.
// Feed it one line at a time; a non-nil return is a completed block.
type Scanner struct {
	st          state
	expected    []string
	replacement []string
	ops         []Op
}

// NewScanner returns a scanner in the idle state.
func NewScanner() *Scanner {
	return &Scanner{}
}

// ConsumeLine advances the state machine by one line. It returns a
// completed Block when a close marker (or hunk boundary) is reached,
// nil otherwise. Malformed marker sequences drop the partial block
// silently; no partial block is ever emitted.
func (s *Scanner) ConsumeLine(line string) *Block {
	switch s.st {
	case idle:
		switch {
		case line == MarkerSearch:
			s.st = capturingExpected
		case isHunkMarker(line):
			s.st = capturingHunk
		}
		// A stray close marker (or anything else) is ignored
		return nil

	case capturingExpected:
		switch {
		case line == MarkerReplace:
			s.st = capturingReplacement
		case line == MarkerEnd:
			// Close without a replacement section: malformed, drop
			s.reset()
		case line == MarkerSearch:
			// Stale opener: restart the block
			s.expected = nil
		default:
			s.expected = append(s.expected, line)
		}
		return nil

	case capturingReplacement:
		switch {
		case line == MarkerEnd:
			b := &Block{Expected: s.expected, Replacement: s.replacement}
			s.reset()
			return b
		case line == MarkerSearch:
			s.reset()
			s.st = capturingExpected
		default:
			s.replacement = append(s.replacement, line)
		}
		return nil

	case capturingHunk:
		if isHunkMarker(line) {
			b := s.flushHunk()
			s.st = capturingHunk
			return b
		}
		if len(line) > 0 {
			switch line[0] {
			case ' ':
				s.ops = append(s.ops, Op{Kind: OpContext, Text: line[1:]})
				return nil
			case '-':
				s.ops = append(s.ops, Op{Kind: OpDelete, Text: line[1:]})
				return nil
			case '+':
				s.ops = append(s.ops, Op{Kind: OpAdd, Text: line[1:]})
				return nil
			}
		}
		if strings.TrimSpace(line) == "" {
			// Blank lines between hunks are noise, not a boundary
			return nil
		}
		// Unrecognized non-blank line ends the hunk. It may itself open
		// the next block.
		b := s.flushHunk()
		if line == MarkerSearch {
			s.st = capturingExpected
		}
		return b
	}
	return nil
}

// Flush emits a trailing hunk at end of stream. A partial SEARCH/REPLACE
// block is dropped: it never saw its close marker.
func (s *Scanner) Flush() *Block {
	if s.st == capturingHunk {
		return s.flushHunk()
	}
	s.reset()
	return nil
}

// flushHunk packages accumulated ops into a Block and resets to idle.
// Expected is the context+delete view, Replacement the context+add view.
func (s *Scanner) flushHunk() *Block {
	ops := s.ops
	s.reset()
	if len(ops) == 0 {
		return nil
	}

	b := &Block{Ops: ops}
	for _, op := range ops {
		switch op.Kind {
		case OpContext:
			b.Expected = append(b.Expected, op.Text)
			b.Replacement = append(b.Replacement, op.Text)
		case OpDelete:
			b.Expected = append(b.Expected, op.Text)
		case OpAdd:
			b.Replacement = append(b.Replacement, op.Text)
		}
	}
	return b
}

func (s *Scanner) reset() {
	s.st = idle
	s.expected = nil
	s.replacement = nil
	s.ops = nil
}

// isHunkMarker reports whether the line opens a diff hunk: "@@ -...@@".
func isHunkMarker(line string) bool {
	trimmed := strings.TrimRight(line, " \t")
	return strings.HasPrefix(trimmed, "@@ -") && strings.HasSuffix(trimmed, "@@") && len(trimmed) > 6
}
