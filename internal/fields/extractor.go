// Package fields extracts candidate invoice fields from OCR text using
// ordered regular-expression patterns, scoring each candidate against the
// word-level OCR confidence.
package fields

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/invoicehub/invoice-rpa/constants"
	"github.com/invoicehub/invoice-rpa/internal/ocr"
)

// Field is one extracted candidate. Absence from the result map means
// "not found"; a Field never carries a placeholder value.
type Field struct {
	Value      string
	Confidence float64 // 0..100, mean word confidence of overlapping tokens
	BBox       ocr.BBox
	Type       constants.FieldType
	Unparsed   bool // set when a date value matched no known source format
}

// patterns are ordered most-specific-first per field type. The first match
// wins; ordering is the ranking, nothing is re-scored at runtime.
var patterns = map[constants.FieldType][]*regexp.Regexp{
	constants.FieldInvoiceNumber: {
		regexp.MustCompile(`(?im)(?:fattura|invoice|n[°.º]?)\s*[:\-]?\s*(\d{4,}[/\-]?\d*)`),
		regexp.MustCompile(`(?im)(?:FT|INV|DOC)[:\-\s]*(\d{4,})`),
		regexp.MustCompile(`(?im)numero\s+(?:fattura|documento)[:\s]+(\d+)`),
	},
	constants.FieldDate: {
		regexp.MustCompile(`(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})`),
		regexp.MustCompile(`(\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2})`),
	},
	constants.FieldVATNumber: {
		regexp.MustCompile(`(?im)(?:p\.?\s*iva|partita\s+iva|vat)[:\s]*(\d{11})`),
		regexp.MustCompile(`(?im)(?:tax\s+id|fiscal\s+code)[:\s]*(\d{11})`),
	},
	constants.FieldAmount: {
		regexp.MustCompile(`(?im)(?:totale|total|importo)[:\s]+€?\s*([\d.,]+)`),
		regexp.MustCompile(`(?im)(?:grand\s+total|net\s+amount)[:\s]+€?\s*([\d.,]+)`),
	},
	constants.FieldEmail: {
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	},
}

// fieldOrder keeps extraction deterministic across runs.
var fieldOrder = []constants.FieldType{
	constants.FieldInvoiceNumber,
	constants.FieldDate,
	constants.FieldVATNumber,
	constants.FieldAmount,
	constants.FieldEmail,
}

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// ExtractFields runs every field type's pattern list over the OCR text and
// normalizes the winners. Fields whose normalized value is invalid (a VAT id
// that is not 11 digits) are dropped, never fabricated.
func (e *Extractor) ExtractFields(text string, words []ocr.Word) map[constants.FieldType]Field {
	out := make(map[constants.FieldType]Field, len(fieldOrder))
	for _, ft := range fieldOrder {
		f, ok := e.extractField(text, words, ft)
		if ok {
			out[ft] = f
		}
	}
	return e.postProcess(out)
}

func (e *Extractor) extractField(text string, words []ocr.Word, ft constants.FieldType) (Field, bool) {
	for _, re := range patterns[ft] {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value := m[0]
		if len(m) > 1 {
			value = m[1]
		}
		value = strings.TrimSpace(value)
		return Field{
			Value:      value,
			Confidence: fieldConfidence(value, words),
			BBox:       findBBox(value, words),
			Type:       ft,
		}, true
	}
	return Field{}, false
}

// fieldConfidence is the mean OCR confidence over words overlapping any token
// of the value (case-insensitive substring), 0 when nothing overlaps.
func fieldConfidence(value string, words []ocr.Word) float64 {
	tokens := strings.Fields(strings.ToLower(value))
	var sum float64
	var n int
	for _, w := range words {
		wt := strings.ToLower(w.Text)
		for _, tok := range tokens {
			if strings.Contains(wt, tok) {
				sum += w.Confidence
				n++
				break
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// findBBox returns the box of the first word containing the whole value,
// or a zero box.
func findBBox(value string, words []ocr.Word) ocr.BBox {
	lv := strings.ToLower(value)
	for _, w := range words {
		if strings.Contains(strings.ToLower(w.Text), lv) {
			return w.BBox
		}
	}
	return ocr.BBox{}
}

// postProcess normalizes the raw matches per field type.
func (e *Extractor) postProcess(fields map[constants.FieldType]Field) map[constants.FieldType]Field {
	if f, ok := fields[constants.FieldVATNumber]; ok {
		vat, valid := NormalizeVAT(f.Value)
		if valid {
			f.Value = vat
			fields[constants.FieldVATNumber] = f
		} else {
			e.logger.Warn("fields.vat.invalid", "vat", f.Value)
			delete(fields, constants.FieldVATNumber)
		}
	}

	if f, ok := fields[constants.FieldDate]; ok {
		if iso, parsed := NormalizeDate(f.Value); parsed {
			f.Value = iso
		} else {
			f.Unparsed = true
			e.logger.Warn("fields.date.unparsed", "date", f.Value)
		}
		fields[constants.FieldDate] = f
	}

	if f, ok := fields[constants.FieldAmount]; ok {
		if amt, parsed := NormalizeAmount(f.Value); parsed {
			f.Value = amt
			fields[constants.FieldAmount] = f
		} else {
			e.logger.Warn("fields.amount.invalid", "amount", f.Value)
		}
	}

	return fields
}

// Values flattens the field map into plain value strings for the structuring
// prompt.
func Values(fields map[constants.FieldType]Field) map[string]string {
	out := make(map[string]string, len(fields))
	for ft, f := range fields {
		out[string(ft)] = f.Value
	}
	return out
}
