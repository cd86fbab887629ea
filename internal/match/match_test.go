package match

import (
	"strings"
	"testing"
)

var doc = []string{
	"package main",
	"",
	"import \"fmt\"",
	"",
	"func main() {",
	"\tfmt.Println(\"hello\")",
	"\tcount := 0",
	"\tfor i := 0; i < 10; i++ {",
	"\t\tcount += i",
	"\t}",
	"\tfmt.Println(count)",
	"}",
}

func TestWindow_ExactSpanIsPerfect(t *testing.T) {
	// Any verbatim contiguous span must locate at itself with 1.0
	s := WindowScorer{}
	for start := 0; start < len(doc); start++ {
		for end := start + 1; end <= len(doc); end++ {
			expected := doc[start:end]
			r, ok := s.Locate(doc, expected, nil)
			if !ok {
				t.Fatalf("span [%d,%d): not located", start, end)
			}
			if r.Confidence != 1.0 {
				t.Fatalf("span [%d,%d): confidence = %v, want 1.0", start, end, r.Confidence)
			}
			if r.StartLine > start {
				t.Fatalf("span [%d,%d): located at %d, after the span itself", start, end, r.StartLine)
			}
		}
	}
}

func TestWindow_UniqueSpanLocatesExactly(t *testing.T) {
	s := WindowScorer{}
	r, ok := s.Locate(doc, []string{"\tcount := 0"}, nil)
	if !ok || r.StartLine != 6 || r.EndLine != 7 {
		t.Fatalf("result = %+v, ok = %v, want [6,7)", r, ok)
	}
}

func TestWindow_ReindentScoresPointNine(t *testing.T) {
	s := WindowScorer{}
	expected := []string{
		"    for i := 0; i < 10; i++ {",
		"        count += i",
		"    }",
	}
	r, ok := s.Locate(doc, expected, nil)
	if !ok {
		t.Fatalf("not located, best = %+v", r)
	}
	if r.StartLine != 7 {
		t.Errorf("start = %d, want 7", r.StartLine)
	}
	if r.Confidence < 0.9-1e-9 {
		t.Errorf("confidence = %v, want >= 0.9", r.Confidence)
	}
}

func TestWindow_EmptyDocument(t *testing.T) {
	s := WindowScorer{}
	for _, empty := range [][]string{nil, {}, {""}} {
		r, ok := s.Locate(empty, []string{"anything"}, nil)
		if !ok {
			t.Fatalf("empty doc %q: not located", empty)
		}
		if r.StartLine != 0 || r.Confidence != 1.0 {
			t.Errorf("empty doc %q: result = %+v, want position 0 confidence 1.0", empty, r)
		}
	}
}

func TestWindow_EmptyExpectedFails(t *testing.T) {
	s := WindowScorer{}
	r, ok := s.Locate(doc, nil, nil)
	if ok {
		t.Fatalf("result = %+v, want hard failure for empty expected", r)
	}
}

func TestWindow_NoMatchReportsBestScore(t *testing.T) {
	s := WindowScorer{}
	expected := []string{"\tfor i := 0; i < 10; i++ {", "\t\ttotally different", "\tnot this either"}
	r, ok := s.Locate(doc, expected, nil)
	if ok {
		t.Fatalf("result = %+v, want rejection", r)
	}
	// One of three lines matches exactly somewhere
	if r.Confidence <= 0 || r.Confidence > Threshold {
		t.Errorf("confidence = %v, want in (0, %v]", r.Confidence, Threshold)
	}
}

func TestWindow_TieKeepsFirst(t *testing.T) {
	dup := []string{"x", "same", "y", "same", "z"}
	s := WindowScorer{}
	r, ok := s.Locate(dup, []string{"same"}, nil)
	if !ok || r.StartLine != 1 {
		t.Fatalf("result = %+v, want first occurrence at 1", r)
	}
}

func TestWindow_RangeRestricts(t *testing.T) {
	dup := []string{"x", "same", "y", "same", "z"}
	s := WindowScorer{}
	r, ok := s.Locate(dup, []string{"same"}, &Range{Start: 2, End: 5})
	if !ok || r.StartLine != 3 {
		t.Fatalf("result = %+v, want occurrence at 3 within range", r)
	}
}

func TestWindow_RangeClamped(t *testing.T) {
	s := WindowScorer{}
	r, ok := s.Locate(doc, []string{"\tcount := 0"}, &Range{Start: -5, End: 1000})
	if !ok || r.StartLine != 6 {
		t.Fatalf("result = %+v, want [6,7) with clamped range", r)
	}
}

func TestWindow_BlankLinesMatchFully(t *testing.T) {
	s := WindowScorer{}
	// Expected has a space-only blank, document's is empty
	expected := []string{"import \"fmt\"", "   ", "func main() {"}
	r, ok := s.Locate(doc, expected, nil)
	if !ok || r.StartLine != 2 {
		t.Fatalf("result = %+v, ok = %v", r, ok)
	}
	// 1.0 + 1.0 (both blank) + 1.0
	if r.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", r.Confidence)
	}
}

func TestTrim_ExactSpan(t *testing.T) {
	s := TrimLadder{}
	r, ok := s.Locate(doc, doc[4:7], nil)
	if !ok || r.StartLine != 4 || r.Confidence != 1.0 {
		t.Fatalf("result = %+v, ok = %v", r, ok)
	}
	if r.TrimmedLeading != 0 || r.TrimmedTrailing != 0 {
		t.Errorf("trims = %d/%d, want 0/0", r.TrimmedLeading, r.TrimmedTrailing)
	}
}

func TestTrim_SkipsInsertedBlankLines(t *testing.T) {
	withBlanks := []string{"a", "", "b", "c"}
	s := TrimLadder{}
	r, ok := s.Locate(withBlanks, []string{"a", "b", "c"}, nil)
	if !ok {
		t.Fatalf("not located, best = %+v", r)
	}
	if r.StartLine != 0 || r.EndLine != 4 {
		t.Errorf("span = [%d,%d), want [0,4)", r.StartLine, r.EndLine)
	}
	if r.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", r.Confidence)
	}
}

func TestTrim_ClosingTokensInterchangeable(t *testing.T) {
	target := []string{"if ok {", "\tdo()", "}"}
	s := TrimLadder{}
	r, ok := s.Locate(target, []string{"if ok {", "\tdo()", ");"}, nil)
	if !ok {
		t.Fatalf("not located, best = %+v", r)
	}
	if r.StartLine != 0 {
		t.Errorf("start = %d, want 0", r.StartLine)
	}
	if r.Confidence >= 1.0 {
		t.Errorf("confidence = %v, want < 1.0 for a swapped closer", r.Confidence)
	}
}

func TestTrim_TrimsDriftedBoundary(t *testing.T) {
	s := TrimLadder{}
	// First expected line does not exist anywhere; the rest is verbatim
	expected := append([]string{"// no such line in the document"}, doc[4:7]...)
	r, ok := s.Locate(doc, expected, nil)
	if !ok {
		t.Fatalf("not located, best = %+v", r)
	}
	if r.TrimmedLeading != 1 || r.TrimmedTrailing != 0 {
		t.Errorf("trims = %d/%d, want 1/0", r.TrimmedLeading, r.TrimmedTrailing)
	}
	if r.StartLine != 4 {
		t.Errorf("start = %d, want 4", r.StartLine)
	}
	if r.Confidence >= 1.0 {
		t.Errorf("confidence = %v, want a trim penalty below 1.0", r.Confidence)
	}
}

func TestTrim_GibberishRejected(t *testing.T) {
	s := TrimLadder{}
	expected := []string{"nothing here", "matches anything", "in the document"}
	r, ok := s.Locate(doc, expected, nil)
	if ok {
		t.Fatalf("result = %+v, want rejection", r)
	}
	_ = r
}

func TestForName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"window", "window"},
		{"trim", "trim"},
		{"bogus", "window"},
	}
	for _, tc := range cases {
		if got := ForName(tc.name).Name(); got != tc.want {
			t.Errorf("ForName(%q).Name() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestStripSpace(t *testing.T) {
	if got := stripSpace(" \ta b\tc \r"); got != "abc" {
		t.Errorf("stripSpace = %q, want %q", got, "abc")
	}
}

func TestLineScore(t *testing.T) {
	cases := []struct {
		got, want string
		score     float64
	}{
		{"same", "same", 1.0},
		{"", "   ", 1.0},
		{"\tx := 1", "    x := 1", 0.9},
		{"x := 1", "y := 2", 0.0},
	}
	for _, tc := range cases {
		if s := lineScore(tc.got, tc.want); s != tc.score {
			t.Errorf("lineScore(%q, %q) = %v, want %v", tc.got, tc.want, s, tc.score)
		}
	}
}

func TestWindow_ReindentEverySpan(t *testing.T) {
	// Whitespace-only drift on any span stays above 0.9 at that span
	s := WindowScorer{}
	for start := 4; start < 9; start++ {
		span := doc[start : start+3]
		reindented := make([]string, len(span))
		for i, l := range span {
			reindented[i] = "    " + strings.TrimLeft(l, " \t")
		}
		r, _ := s.Locate(doc, reindented, nil)
		if r.StartLine != start {
			t.Errorf("span at %d located at %d", start, r.StartLine)
		}
		if r.Confidence < 0.9-1e-9 {
			t.Errorf("span at %d: confidence = %v, want >= 0.9", start, r.Confidence)
		}
	}
}
