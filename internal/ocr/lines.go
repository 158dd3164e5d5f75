package ocr

import "strings"

// Line is one visual text line: consecutive words sharing tesseract's block
// and line numbers, in reading order.
type Line struct {
	Block int
	Line  int
	Words []Word
}

// Text joins the line's words with single spaces.
func (l Line) Text() string {
	parts := make([]string, len(l.Words))
	for i, w := range l.Words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// Lines groups words into visual lines by their block and line numbers,
// preserving input order.
func Lines(words []Word) []Line {
	var out []Line
	for _, w := range words {
		if n := len(out); n > 0 && out[n-1].Block == w.Block && out[n-1].Line == w.Line {
			out[n-1].Words = append(out[n-1].Words, w)
			continue
		}
		out = append(out, Line{Block: w.Block, Line: w.Line, Words: []Word{w}})
	}
	return out
}
