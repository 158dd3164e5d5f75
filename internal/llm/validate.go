package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/invoicehub/invoice-rpa/internal/common"
)

// amountTolerance absorbs rounding noise in invoice arithmetic.
const amountTolerance = 0.01

// validateJSONAgainstSchema validates "data" against "schemaMap".
func validateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrSchemaValidation, err)
	}
	return nil
}

// CheckInvariants verifies the arithmetic and identity invariants a record
// must satisfy before it can be accepted without manual review. The first
// violating field is reported with expected vs actual values.
func CheckInvariants(rec *InvoiceRecord) error {
	if rec.Subtotal <= 0 {
		return &common.FieldViolation{
			Field:    "subtotal",
			Expected: "> 0",
			Actual:   fmt.Sprintf("%.2f", rec.Subtotal),
		}
	}
	if rec.TotalAmount <= 0 {
		return &common.FieldViolation{
			Field:    "total_amount",
			Expected: "> 0",
			Actual:   fmt.Sprintf("%.2f", rec.TotalAmount),
		}
	}
	if len(rec.SupplierVAT) != 11 || !allDigits(rec.SupplierVAT) {
		return &common.FieldViolation{
			Field:    "supplier_vat",
			Expected: "exactly 11 digits",
			Actual:   fmt.Sprintf("%q", rec.SupplierVAT),
		}
	}
	if len(rec.CustomerVAT) != 11 || !allDigits(rec.CustomerVAT) {
		return &common.FieldViolation{
			Field:    "customer_vat",
			Expected: "exactly 11 digits",
			Actual:   fmt.Sprintf("%q", rec.CustomerVAT),
		}
	}
	if expected := rec.Subtotal * rec.VATRate; math.Abs(rec.VATAmount-expected) > amountTolerance {
		return &common.FieldViolation{
			Field:    "vat_amount",
			Expected: fmt.Sprintf("subtotal * vat_rate = %.2f", expected),
			Actual:   fmt.Sprintf("%.2f", rec.VATAmount),
		}
	}
	if expected := rec.Subtotal + rec.VATAmount; math.Abs(rec.TotalAmount-expected) > amountTolerance {
		return &common.FieldViolation{
			Field:    "total_amount",
			Expected: fmt.Sprintf("subtotal + vat_amount = %.2f", expected),
			Actual:   fmt.Sprintf("%.2f", rec.TotalAmount),
		}
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
