package ocr

import (
	"strconv"
	"strings"
)

// Tesseract TSV columns, in order.
const (
	colBlock = 2
	colLine  = 4
	colLeft  = 6
	colTop   = 7
	colWidth = 8
	colHigh  = 9
	colConf  = 10
	colText  = 11
	numCols  = 12
)

// parseTSV extracts word rows from tesseract TSV output. Header rows,
// structural rows (conf == -1) and zero-confidence artifacts are skipped;
// what remains are the recognized words with their geometry.
func parseTSV(out []byte) []Word {
	lines := strings.Split(string(out), "\n")
	words := make([]Word, 0, len(lines))
	for i, ln := range lines {
		if i == 0 || ln == "" {
			continue // header or trailing newline
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < numCols {
			continue
		}
		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil || conf <= 0 {
			continue
		}
		text := strings.TrimSpace(cols[colText])
		if text == "" {
			continue
		}
		words = append(words, Word{
			Text:       text,
			Confidence: conf,
			BBox: BBox{
				X: atoi(cols[colLeft]),
				Y: atoi(cols[colTop]),
				W: atoi(cols[colWidth]),
				H: atoi(cols[colHigh]),
			},
			Block: atoi(cols[colBlock]),
			Line:  atoi(cols[colLine]),
		})
	}
	return words
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
