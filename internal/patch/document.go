// Package patch applies located edit blocks to a document under a
// rollback-capable transaction.
package patch

// Document is the narrow accessor through which the core reads and
// mutates the editor-owned buffer. The core never owns the document;
// line indices are stable for the duration of one transaction step.
type Document interface {
	// Lines returns the current document content as ordered lines.
	Lines() []string
	// Replace substitutes lines [start, end) with newLines in one mutation.
	Replace(start, end int, newLines []string)
	// LineCount returns the current number of lines.
	LineCount() int
}

// MemDocument is an in-memory Document, used by tests and the bench
// harness, and by callers that stage content before writing it back to
// the editor.
type MemDocument struct {
	lines []string
}

// NewMemDocument copies lines into a fresh in-memory document.
func NewMemDocument(lines []string) *MemDocument {
	d := &MemDocument{lines: make([]string, len(lines))}
	copy(d.lines, lines)
	return d
}

func (d *MemDocument) Lines() []string {
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

func (d *MemDocument) LineCount() int {
	return len(d.lines)
}

func (d *MemDocument) Replace(start, end int, newLines []string) {
	if start < 0 {
		start = 0
	}
	if end > len(d.lines) {
		end = len(d.lines)
	}
	if start > end {
		start = end
	}
	// Splice: remove [start, end) and insert newLines
	result := make([]string, 0, len(d.lines)-(end-start)+len(newLines))
	result = append(result, d.lines[:start]...)
	result = append(result, newLines...)
	result = append(result, d.lines[end:]...)
	d.lines = result
}
