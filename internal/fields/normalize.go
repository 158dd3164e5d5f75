package fields

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reNonDigit = regexp.MustCompile(`[^\d]`)

// NormalizeVAT strips non-digit characters from an Italian VAT id. Valid only
// when exactly 11 digits remain.
func NormalizeVAT(s string) (string, bool) {
	vat := reNonDigit.ReplaceAllString(s, "")
	return vat, len(vat) == 11
}

// dateFormats is the fixed, ordered list of accepted source layouts; the
// first successful parse wins.
var dateFormats = []string{
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2006-1-2",
	"2/1/06",
}

// NormalizeDate coerces a matched date string to ISO YYYY-MM-DD. Returns the
// input unchanged and false when no source format applies.
func NormalizeDate(s string) (string, bool) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return s, false
}

// NormalizeAmount converts an Italian-formatted amount ("1.234,56") to a
// fixed-point decimal string with two digits. Returns the raw input and false
// when it does not parse.
func NormalizeAmount(s string) (string, bool) {
	cleaned := strings.ReplaceAll(s, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return s, false
	}
	return fmt.Sprintf("%.2f", v), true
}
