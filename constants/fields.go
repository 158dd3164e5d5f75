package constants

// FieldType names the candidate fields the pattern extractor recognizes.
type FieldType string

// Stable values (these exact strings appear in structuring prompts and logs).
const (
	FieldInvoiceNumber FieldType = "invoice_number"
	FieldDate          FieldType = "date"
	FieldVATNumber     FieldType = "vat_number"
	FieldAmount        FieldType = "amount"
	FieldEmail         FieldType = "email"
)

// DocStatus is the terminal status of one document inside a batch.
type DocStatus string

const (
	DocStatusSuccess DocStatus = "SUCCESS" // record produced (may still need review)
	DocStatusFailed  DocStatus = "FAILED"  // a stage failed; no record
)
