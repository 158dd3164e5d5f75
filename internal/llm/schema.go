package llm

// BuildInvoiceJSONSchema returns the invoice record schema (JSON-Schema draft
// 2020-12 subset) as a generic map. It is embedded in the structuring prompt
// and used locally to validate whatever comes back.
func BuildInvoiceJSONSchema() map[string]any {
	lineItem := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"description": map[string]any{"type": "string"},
			"quantity":    map[string]any{"type": "number", "minimum": 0.0},
			"unit_price":  map[string]any{"type": "number"},
			"total":       map[string]any{"type": "number"},
		},
		"required": []string{"description", "quantity", "unit_price", "total"},
	}

	props := map[string]any{
		"invoice_number":   map[string]any{"type": "string", "minLength": 1},
		"invoice_date":     map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"supplier_name":    map[string]any{"type": "string", "minLength": 1},
		"supplier_vat":     map[string]any{"type": "string", "pattern": `^\d{11}$`},
		"supplier_address": map[string]any{"type": "string"},
		"customer_name":    map[string]any{"type": "string", "minLength": 1},
		"customer_vat":     map[string]any{"type": "string", "pattern": `^\d{11}$`},
		"customer_address": map[string]any{"type": "string"},
		"subtotal":         map[string]any{"type": "number", "exclusiveMinimum": 0.0},
		"vat_rate":         map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"vat_amount":       map[string]any{"type": "number", "minimum": 0.0},
		"total_amount":     map[string]any{"type": "number", "exclusiveMinimum": 0.0},
		"currency":         map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`},
		"line_items":       map[string]any{"type": "array", "items": lineItem},
		"payment_terms":    map[string]any{"type": "string"},
		"due_date":         map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},

		// Collaborator self-assessment; everything else is stamped locally.
		"confidence_score":       map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"validation_notes":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"requires_manual_review": map[string]any{"type": "boolean"},
	}

	required := []string{
		"invoice_number", "invoice_date",
		"supplier_name", "supplier_vat",
		"customer_name", "customer_vat",
		"subtotal", "vat_amount", "total_amount",
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}
