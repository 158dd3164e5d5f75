package pipeline

import (
	"time"

	"github.com/invoicehub/invoice-rpa/constants"
	"github.com/invoicehub/invoice-rpa/internal/llm"
)

// Result is the terminal outcome of one document: either a structured record
// (possibly flagged for review) or a conversion of whatever stage error
// occurred. Results correlate to inputs by SourcePath, never by position.
type Result struct {
	Status     constants.DocStatus
	SourcePath string

	// Success fields.
	Record             llm.InvoiceRecord
	OCRConfidence      float64
	SemanticSimilarity float64

	// Failure field.
	Err error

	Elapsed time.Duration
}

// Failed builds a failure result for one document.
func Failed(path string, err error) Result {
	return Result{
		Status:     constants.DocStatusFailed,
		SourcePath: path,
		Err:        err,
	}
}
