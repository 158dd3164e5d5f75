package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invoicehub/invoice-rpa/internal/common"
)

const (
	defaultVATRate  = 0.22
	defaultCurrency = "EUR"
	defaultAIScore  = 0.9
)

// ExtractJSON strips markdown fences and any surrounding prose from a
// collaborator response, keeping the outermost JSON object. Models wrap
// output in ```json fences often enough that this is not optional.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			return s[i : j+1]
		}
	}
	return s
}

// numericFields are the record keys the sanitizer coerces from numeric
// strings.
var numericFields = map[string]struct{}{
	"subtotal":         {},
	"vat_rate":         {},
	"vat_amount":       {},
	"total_amount":     {},
	"confidence_score": {},
	"quantity":         {},
	"unit_price":       {},
	"total":            {},
}

// sanitize normalizes common model sloppiness ahead of strict validation:
// null optionals are dropped and numeric fields sent as quoted strings are
// coerced. Anything it cannot decode passes through untouched for the strict
// path to reject.
func sanitize(data []byte) []byte {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return data
	}
	sanitizeObject(obj)
	out, err := json.Marshal(obj)
	if err != nil {
		return data
	}
	return out
}

func sanitizeObject(obj map[string]any) {
	for k, v := range obj {
		switch t := v.(type) {
		case nil:
			delete(obj, k)
		case string:
			if _, ok := numericFields[k]; ok {
				if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
					obj[k] = f
				}
			}
		case map[string]any:
			sanitizeObject(t)
		case []any:
			for _, item := range t {
				if m, ok := item.(map[string]any); ok {
					sanitizeObject(m)
				}
			}
		}
	}
}

// ParseRecord decodes and strictly validates a structuring response:
// JSON shape via the schema, then the arithmetic invariants as explicit
// construction-time checks. Any failure wraps ErrSchemaValidation.
func ParseRecord(content string) (InvoiceRecord, error) {
	data := sanitize([]byte(ExtractJSON(content)))

	rec, err := decodeRecord(data)
	if err != nil {
		return InvoiceRecord{}, fmt.Errorf("%w: decode record: %v", common.ErrSchemaValidation, err)
	}
	if err := validateJSONAgainstSchema(BuildInvoiceJSONSchema(), data); err != nil {
		return InvoiceRecord{}, err
	}
	if err := CheckInvariants(&rec); err != nil {
		return InvoiceRecord{}, err
	}
	return rec, nil
}

// ParseLenient decodes whatever fields are recoverable, applies defaults and
// flags the record for manual review with the validation error that got us
// here. The document is never discarded over a malformed response.
func ParseLenient(content string, cause error) InvoiceRecord {
	data := sanitize([]byte(ExtractJSON(content)))

	rec, err := decodeRecord(data)
	if err != nil {
		// Not even valid JSON: an empty record still flows through the
		// gate so the document surfaces in the review queue.
		rec = InvoiceRecord{}
		applyDefaults(&rec, nil)
	}
	rec.Flag(cause.Error())
	return rec
}

// decodeRecord unmarshals the wire object and applies schema defaults for
// fields the collaborator omitted (vat_rate, currency, confidence score).
func decodeRecord(data []byte) (InvoiceRecord, error) {
	var rec InvoiceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return InvoiceRecord{}, err
	}

	// Presence matters for defaulting: a JSON null or a missing key both
	// decode to the zero value, but only absence gets the default.
	var present map[string]json.RawMessage
	_ = json.Unmarshal(data, &present)
	applyDefaults(&rec, present)
	return rec, nil
}

func applyDefaults(rec *InvoiceRecord, present map[string]json.RawMessage) {
	if _, ok := present["vat_rate"]; !ok {
		rec.VATRate = defaultVATRate
	}
	if rec.Currency == "" {
		rec.Currency = defaultCurrency
	}
	if score, ok := present["confidence_score"]; ok {
		var v float64
		if err := json.Unmarshal(score, &v); err == nil && v > 0 {
			rec.AIValidationScore = v
			return
		}
	}
	rec.AIValidationScore = defaultAIScore
}
