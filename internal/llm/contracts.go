package llm

import "context"

// Completer is the structuring-collaborator contract: fixed system
// instructions plus a user payload in, free-form text out. Implementations
// must be safe for concurrent use across batch workers; all returned content
// is untrusted and must pass schema validation before use.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Review is the append-only manual-review accumulator embedded in a record.
// The flag is monotonic within a pipeline run: once set it is never cleared,
// and notes are only ever appended.
type Review struct {
	ValidationNotes      []string `json:"validation_notes"`
	RequiresManualReview bool     `json:"requires_manual_review"`
}

// Flag marks the record for manual review and appends one note.
func (r *Review) Flag(note string) {
	r.RequiresManualReview = true
	r.ValidationNotes = append(r.ValidationNotes, note)
}

// LineItem is one invoice detail row.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// InvoiceRecord is the validated, structured outcome of one document.
type InvoiceRecord struct {
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date"` // YYYY-MM-DD

	SupplierName    string `json:"supplier_name"`
	SupplierVAT     string `json:"supplier_vat"` // 11 digits
	SupplierAddress string `json:"supplier_address,omitempty"`

	CustomerName    string `json:"customer_name"`
	CustomerVAT     string `json:"customer_vat"` // 11 digits
	CustomerAddress string `json:"customer_address,omitempty"`

	Subtotal    float64 `json:"subtotal"`     // > 0
	VATRate     float64 `json:"vat_rate"`     // 0..1, default 0.22
	VATAmount   float64 `json:"vat_amount"`   // >= 0
	TotalAmount float64 `json:"total_amount"` // > 0
	Currency    string  `json:"currency"`     // ISO 4217, default EUR

	LineItems    []LineItem `json:"line_items"`
	PaymentTerms string     `json:"payment_terms,omitempty"`
	DueDate      string     `json:"due_date,omitempty"`

	OCRConfidence     float64 `json:"ocr_confidence"`      // 0..100, stamped from the OCR stage
	AIValidationScore float64 `json:"ai_validation_score"` // 0..1, collaborator self-report

	Review
}
