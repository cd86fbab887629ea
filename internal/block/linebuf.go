package block

import "strings"

// LineBuffer turns streamed text deltas into whole lines for the scanner.
// Deltas split lines at arbitrary points; the trailing partial line is
// held until its newline arrives.
type LineBuffer struct {
	partial string
}

// Add appends a delta and returns the lines it completed, without
// trailing newlines.
func (b *LineBuffer) Add(text string) []string {
	b.partial += text
	if !strings.Contains(b.partial, "\n") {
		return nil
	}
	parts := strings.Split(b.partial, "\n")
	b.partial = parts[len(parts)-1]
	lines := parts[:len(parts)-1]
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Tail returns the pending partial line, if any.
func (b *LineBuffer) Tail() string {
	return b.partial
}
