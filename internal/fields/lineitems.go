package fields

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/invoicehub/invoice-rpa/internal/ocr"
)

// LineItem is a detail-row candidate parsed from one visual OCR line.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// lineItemPattern matches product rows of the shape
// "description  quantity  price", with an optional euro sign.
var lineItemPattern = regexp.MustCompile(`^(.+?)\s+(\d+)\s+€?\s*([\d.,]+)$`)

// lineItemMinConfidence drops noise words before grouping.
const lineItemMinConfidence = 30

// ExtractLineItems groups words into visual lines and parses the ones that
// look like detail rows. Rows whose price does not parse are skipped, never
// guessed at.
func ExtractLineItems(words []ocr.Word) []LineItem {
	kept := make([]ocr.Word, 0, len(words))
	for _, w := range words {
		if w.Confidence > lineItemMinConfidence {
			kept = append(kept, w)
		}
	}

	var items []LineItem
	for _, line := range ocr.Lines(kept) {
		m := lineItemPattern.FindStringSubmatch(line.Text())
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		price, err := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", "."), 64)
		if err != nil {
			continue
		}
		items = append(items, LineItem{
			Description: strings.TrimSpace(m[1]),
			Quantity:    qty,
			Price:       price,
		})
	}
	return items
}
