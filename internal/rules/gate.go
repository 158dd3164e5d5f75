// Package rules applies the business-rule checks that can escalate a
// structured invoice to manual review.
package rules

import (
	"fmt"

	"github.com/invoicehub/invoice-rpa/internal/llm"
)

// Gate holds the review thresholds. Zero values fall back to the defaults
// used in production.
type Gate struct {
	AutoApproveThreshold   float64 // total above this always goes to a human
	MaxInvoiceAmount       float64 // hard ceiling
	OCRConfidenceThreshold float64 // 0..100
	MinAIScore             float64 // 0..1
}

func NewGate(autoApprove, maxAmount, minOCRConfidence, minAIScore float64) Gate {
	if autoApprove <= 0 {
		autoApprove = 5000
	}
	if maxAmount <= 0 {
		maxAmount = 100000
	}
	if minOCRConfidence <= 0 {
		minOCRConfidence = 70
	}
	if minAIScore <= 0 {
		minAIScore = 0.7
	}
	return Gate{
		AutoApproveThreshold:   autoApprove,
		MaxInvoiceAmount:       maxAmount,
		OCRConfidenceThreshold: minOCRConfidence,
		MinAIScore:             minAIScore,
	}
}

// Apply runs every check against the record and returns the gated copy.
// Checks are independent and order-free: each can only set the review flag
// and append one note, never clear anything.
func (g Gate) Apply(rec llm.InvoiceRecord) llm.InvoiceRecord {
	if rec.TotalAmount > g.AutoApproveThreshold {
		rec.Flag(fmt.Sprintf("amount %.2f exceeds auto-approve threshold %.2f", rec.TotalAmount, g.AutoApproveThreshold))
	}
	if rec.TotalAmount > g.MaxInvoiceAmount {
		rec.Flag(fmt.Sprintf("amount %.2f exceeds maximum invoice amount %.2f", rec.TotalAmount, g.MaxInvoiceAmount))
	}
	if rec.OCRConfidence < g.OCRConfidenceThreshold {
		rec.Flag(fmt.Sprintf("low OCR confidence: %.1f%%", rec.OCRConfidence))
	}
	if rec.AIValidationScore < g.MinAIScore {
		rec.Flag(fmt.Sprintf("low AI validation score: %.2f", rec.AIValidationScore))
	}
	return rec
}
